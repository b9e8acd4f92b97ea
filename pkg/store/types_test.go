package store

import (
	"testing"
	"time"
)

func TestRelayDetails_HasExpired(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	details := RelayDetails{ExpiryBlockTime: expiry}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before expiry", expiry.Add(-time.Second), false},
		{"at expiry", expiry, true},
		{"after expiry", expiry.Add(time.Second), true},
	}
	for _, tc := range cases {
		if got := details.HasExpired(tc.now); got != tc.want {
			t.Errorf("%s: HasExpired() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
