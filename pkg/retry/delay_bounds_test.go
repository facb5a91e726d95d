// Bounds checks for backoff at extreme attempt counts: the doubling
// must saturate at MaxDelay instead of overflowing into negative
// durations.
package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayNeverNegativeAtExtremeAttempts(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	for _, attempt := range []int{0, 1, 31, 62, 63, 64, 100, 1 << 20} {
		d := Delay(cfg, attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0), "attempt %d", attempt)
		assert.LessOrEqual(t, d, cfg.MaxDelay, "attempt %d", attempt)
	}
}

func TestDelayJitterStaysNearCapAtExtremeAttempts(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Jitter: true}
	for range 200 {
		d := Delay(cfg, 500)
		assert.GreaterOrEqual(t, d, cfg.MaxDelay*3/4)
		assert.LessOrEqual(t, d, cfg.MaxDelay*5/4)
	}
}

func TestDelayZeroBase(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseDelay: 0, MaxDelay: time.Second, Jitter: true}
	assert.Equal(t, time.Duration(0), Delay(cfg, 10))
}
