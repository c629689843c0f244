package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPortFromArgs(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		port     int
		explicit bool
		wantErr  bool
	}{
		{name: "no args", args: nil, port: 8044},
		{name: "valid port", args: []string{"9000"}, port: 9000, explicit: true},
		{name: "lower bound", args: []string{"1024"}, port: 1024, explicit: true},
		{name: "upper bound", args: []string{"49151"}, port: 49151, explicit: true},
		{name: "below range falls back", args: []string{"80"}, port: 8044},
		{name: "above range falls back", args: []string{"65000"}, port: 8044},
		{name: "non numeric falls back", args: []string{"http"}, port: 8044},
		{name: "too many args", args: []string{"9000", "9001"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			port, explicit, err := portFromArgs(tc.args)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.port, port)
			require.Equal(t, tc.explicit, explicit)
		})
	}
}
