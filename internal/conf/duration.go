package conf

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that serializes as "30s" rather than nanoseconds,
// so status payloads and the YAML config stay human readable.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON writes the duration as a string such as "5m0s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or null.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v *string
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid duration %s: expected a string like \"30s\"", b)
	}
	if v == nil {
		*d = 0
		return nil
	}
	return d.parse(*v)
}

func (d *Duration) parse(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: expected format like \"30s\" or \"5m\"", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts "30s" style strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar duration value, got %v", value.Kind)
	}
	return d.parse(value.Value)
}

var durationType = reflect.TypeFor[Duration]()

// DurationDecodeHook lets viper decode "30s" into Duration fields while keeping
// the stock time.Duration and comma-separated slice hooks. A bare number is
// only accepted when it is zero, since "timeout: 0" is unambiguous.
func DurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(func(from, to reflect.Type, data any) (any, error) {
			if to != durationType {
				return data, nil
			}
			switch v := data.(type) {
			case string:
				var d Duration
				if err := d.parse(v); err != nil {
					return nil, err
				}
				return d, nil
			case int, int64, float64:
				if !reflect.ValueOf(v).IsZero() {
					return nil, fmt.Errorf("invalid duration %v: add a unit, e.g. \"%vs\"", v, v)
				}
				return Duration(0), nil
			default:
				return data, nil
			}
		}),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
