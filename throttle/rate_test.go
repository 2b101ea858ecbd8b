/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRateUnmarshal(t *testing.T) {
	tests := []struct {
		text     string
		wantRate Rate
		wantErr  bool
	}{
		{text: "10/s", wantRate: Rate{Count: 10, Duration: time.Second}},
		{text: "100/m", wantRate: Rate{Count: 100, Duration: time.Minute}},
		{text: "1000/h", wantRate: Rate{Count: 1000, Duration: time.Hour}},
		{text: "5/S", wantRate: Rate{Count: 5, Duration: time.Second}},
		{text: "", wantRate: Rate{}},
		{text: "10", wantErr: true},
		{text: "ten/s", wantErr: true},
		{text: "10/d", wantErr: true},
		{text: "10/s/m", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("text %q", tt.text), func(t *testing.T) {
			var r Rate
			err := r.UnmarshalText([]byte(tt.text))
			if tt.wantErr {
				require.EqualError(t, err, fmt.Sprintf(
					"incorrect format for rate %q, should be N/(s|m|h), for example 10/s, 100/m, 1000/h", tt.text))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantRate, r)
		})
	}
}

func TestRateUnmarshalJSONAndYAML(t *testing.T) {
	var fromJSON struct {
		Rate Rate `json:"rate"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"rate":"10/s"}`), &fromJSON))
	require.Equal(t, Rate{Count: 10, Duration: time.Second}, fromJSON.Rate)

	var fromYAML struct {
		Rate Rate `yaml:"rate"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`rate: 100/m`), &fromYAML))
	require.Equal(t, Rate{Count: 100, Duration: time.Minute}, fromYAML.Rate)
}

func TestRateMarshal(t *testing.T) {
	require.Equal(t, "10/s", Rate{Count: 10, Duration: time.Second}.String())
	require.Equal(t, "100/m", Rate{Count: 100, Duration: time.Minute}.String())
	require.Equal(t, "1000/h", Rate{Count: 1000, Duration: time.Hour}.String())
	require.Equal(t, "", Rate{}.String())

	b, err := json.Marshal(Rate{Count: 42, Duration: time.Minute})
	require.NoError(t, err)
	require.Equal(t, `"42/m"`, string(b))
}
