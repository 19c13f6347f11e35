package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Duration
	}{
		{"string", `"30s"`, Duration(30 * time.Second)},
		{"compound", `"1h30m"`, Duration(90 * time.Minute)},
		{"null", `null`, Duration(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tt.input), &d))
			assert.Equal(t, tt.want, d)
		})
	}

	b, err := json.Marshal(Duration(30 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"30s"`, string(b))

	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))
	assert.Error(t, json.Unmarshal([]byte(`5000000000`), &d), "numbers have no unit")
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var cfg struct {
		Timeout  Duration `yaml:"timeout"`
		Interval Duration `yaml:"interval"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 10s\ninterval: 0\n"), &cfg))
	assert.Equal(t, Duration(10*time.Second), cfg.Timeout)
	assert.Equal(t, Duration(0), cfg.Interval)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "timeout: 10s")

	require.Error(t, yaml.Unmarshal([]byte("timeout: [1, 2]\n"), &cfg))
	require.Error(t, yaml.Unmarshal([]byte("timeout: later\n"), &cfg))
	require.Error(t, yaml.Unmarshal([]byte("timeout: 300\n"), &cfg))
}

func TestDurationDecodeHook(t *testing.T) {
	t.Parallel()

	var out struct {
		Probe   Duration      `mapstructure:"probe"`
		Timeout time.Duration `mapstructure:"timeout"`
		Tags    []string      `mapstructure:"tags"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DurationDecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)
	require.NoError(t, dec.Decode(map[string]any{
		"probe":   "45s",
		"timeout": "2s",
		"tags":    "sync-data,refresh",
	}))

	assert.Equal(t, 45*time.Second, out.Probe.Std())
	assert.Equal(t, 2*time.Second, out.Timeout)
	assert.Equal(t, []string{"sync-data", "refresh"}, out.Tags)
}

func TestDurationDecodeHook_BareNumbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{"int zero", 0, false},
		{"float zero", float64(0), false},
		{"int without unit", 30, true},
		{"float without unit", float64(1.5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out struct {
				Timeout Duration `mapstructure:"timeout"`
			}
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				DecodeHook: DurationDecodeHook(),
				Result:     &out,
			})
			require.NoError(t, err)
			err = dec.Decode(map[string]any{"timeout": tt.value})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Duration(0), out.Timeout)
		})
	}
}
