package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// JobParameters are the identifying inputs of a job launch.
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters returns empty parameters.
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]interface{})}
}

// Put sets a parameter.
func (jp JobParameters) Put(key string, value interface{}) {
	jp.Params[key] = value
}

// Get returns a parameter or nil.
func (jp JobParameters) Get(key string) interface{} {
	if jp.Params == nil {
		return nil
	}
	return jp.Params[key]
}

// GetString returns a string parameter.
func (jp JobParameters) GetString(key string) (string, bool) {
	s, ok := jp.Get(key).(string)
	return s, ok
}

// String renders the parameters in key order.
func (jp JobParameters) String() string {
	return jp.Masked(func(string) bool { return false })
}

// Masked renders the parameters like String, hiding values whose key satisfies isMasked.
func (jp JobParameters) Masked(isMasked func(key string) bool) string {
	keys := make([]string, 0, len(jp.Params))
	for k := range jp.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(jp.Params[k])
		if isMasked(k) {
			v = "****"
		}
		parts = append(parts, k+"="+v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Value implements driver.Valuer as a JSON object.
func (jp JobParameters) Value() (driver.Value, error) {
	if jp.Params == nil {
		return "{}", nil
	}
	b, err := json.Marshal(jp.Params)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (jp *JobParameters) Scan(value interface{}) error {
	jp.Params = make(map[string]interface{})
	b, err := scanBytes(value)
	if err != nil || len(b) == 0 {
		return err
	}
	if err := json.Unmarshal(b, &jp.Params); err != nil {
		return fmt.Errorf("failed to unmarshal JobParameters JSON: %w", err)
	}
	return nil
}
