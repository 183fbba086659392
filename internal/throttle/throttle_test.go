package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFire(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		last     time.Time
		now      time.Time
		interval time.Duration
		fire     bool
		wantLast time.Time
	}{
		{"never fired", time.Time{}, base, 6 * time.Second, true, base},
		{"inside interval", base, base.Add(2 * time.Second), 6 * time.Second, false, base},
		{"exactly at interval", base, base.Add(6 * time.Second), 6 * time.Second, true, base.Add(6 * time.Second)},
		{"past interval", base, base.Add(9 * time.Second), 6 * time.Second, true, base.Add(9 * time.Second)},
		{"zero interval", base, base, 0, true, base},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fire, last := Fire(tt.last, tt.now, tt.interval)
			assert.Equal(t, tt.fire, fire)
			assert.True(t, tt.wantLast.Equal(last), "last = %v, want %v", last, tt.wantLast)
		})
	}
}

func TestExpired(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Second

	assert.False(t, Expired(base, base.Add(29*time.Second), window))
	assert.True(t, Expired(base, base.Add(31*time.Second), window))
	assert.True(t, Expired(time.Time{}, base, window))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 6*time.Second, Seconds(6))
	assert.Equal(t, time.Duration(0), Seconds(-3))
}
