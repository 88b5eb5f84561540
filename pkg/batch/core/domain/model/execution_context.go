package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ExecutionContext is the key/value state saved with a job or step execution.
// Values must be JSON serialisable; numbers read back from storage are float64.
type ExecutionContext map[string]interface{}

// NewExecutionContext returns an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put stores value under key.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get returns the value under key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString returns the string under key.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	s, ok := ec[key].(string)
	return s, ok
}

// GetInt returns the integer under key, accepting the numeric kinds produced by JSON round trips.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// GetInt64 is GetInt for 64-bit counters.
func (ec ExecutionContext) GetInt64(key string) (int64, bool) {
	switch v := ec[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// GetBool returns the bool under key.
func (ec ExecutionContext) GetBool(key string) (bool, bool) {
	b, ok := ec[key].(bool)
	return b, ok
}

// GetFloat64 returns the number under key as float64.
func (ec ExecutionContext) GetFloat64(key string) (float64, bool) {
	switch v := ec[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Copy returns a shallow copy.
func (ec ExecutionContext) Copy() ExecutionContext {
	out := make(ExecutionContext, len(ec))
	for k, v := range ec {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into ec, overwriting existing keys.
func (ec ExecutionContext) Merge(other ExecutionContext) {
	for k, v := range other {
		ec[k] = v
	}
}

// Value implements driver.Valuer as a JSON document.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	b, err := json.Marshal(ec)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (ec *ExecutionContext) Scan(value interface{}) error {
	*ec = make(ExecutionContext)
	b, err := scanBytes(value)
	if err != nil || len(b) == 0 {
		return err
	}
	if err := json.Unmarshal(b, ec); err != nil {
		return fmt.Errorf("failed to unmarshal ExecutionContext JSON: %w", err)
	}
	return nil
}

// FailureList is the ordered, de-duplicated list of failure messages of an execution.
type FailureList []string

// Value implements driver.Valuer as a JSON array.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(fl))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	*fl = FailureList{}
	b, err := scanBytes(value)
	if err != nil || len(b) == 0 {
		return err
	}
	return json.Unmarshal(b, (*[]string)(fl))
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}
