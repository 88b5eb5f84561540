// Package configbinder decodes raw YAML sections (map[string]interface{}) into typed structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes raw into target using `mapstructure` tags.
//
// Strings are converted to numbers and booleans, so values produced by ${VAR} expansion
// bind to typed fields, and "1s"-style strings bind to time.Duration. Keys that do not
// match a field are an error, which catches misspelled settings.
func Bind(raw interface{}, target interface{}) error {
	if raw == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind configuration to %s: %w", targetType.Name(), err)
	}
	return nil
}

// BindSection binds section key of root into target. A missing section leaves target unchanged.
func BindSection(root map[string]interface{}, key string, target interface{}) error {
	raw, ok := root[key]
	if !ok {
		return nil
	}
	if err := Bind(raw, target); err != nil {
		return fmt.Errorf("section %q: %w", key, err)
	}
	return nil
}
