package configbinder_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/configbinder"
)

type exportSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	MaxRows int           `mapstructure:"max_rows"`
	Timeout time.Duration `mapstructure:"timeout"`
	Colors  []string      `mapstructure:"colors"`
}

func TestBindSection(t *testing.T) {
	root := map[string]interface{}{
		"export": map[string]interface{}{
			"enabled":  "true",
			"max_rows": "5000",
			"timeout":  "90s",
			"colors":   "yellow,green",
		},
	}
	got := exportSettings{MaxRows: 10}
	require.NoError(t, configbinder.BindSection(root, "export", &got))
	assert.Equal(t, exportSettings{Enabled: true, MaxRows: 5000, Timeout: 90 * time.Second, Colors: []string{"yellow", "green"}}, got)

	kept := exportSettings{MaxRows: 10}
	require.NoError(t, configbinder.BindSection(root, "absent", &kept))
	assert.Equal(t, 10, kept.MaxRows)
}

func TestBind_UnknownKey(t *testing.T) {
	var got exportSettings
	err := configbinder.Bind(map[string]interface{}{"max_rowz": 1}, &got)
	assert.ErrorContains(t, err, "exportSettings")
}
