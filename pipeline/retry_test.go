package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentially(t *testing.T) {
	base := 100 * time.Millisecond
	max := 10 * time.Second

	for attempt := 1; attempt <= 5; attempt++ {
		ceiling := base * (1 << (attempt - 1))
		floor := ceiling / 2

		for i := 0; i < 20; i++ {
			d := Backoff(attempt, base, max, 0)
			assert.GreaterOrEqual(t, d, floor, "attempt %d", attempt)
			assert.LessOrEqual(t, d, ceiling, "attempt %d", attempt)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	base := time.Second
	max := 4 * time.Second

	for i := 0; i < 20; i++ {
		d := Backoff(10, base, max, 0)
		assert.LessOrEqual(t, d, max)
	}
}

func TestBackoffHonorsServiceHint(t *testing.T) {
	hint := time.Minute
	d := Backoff(1, time.Second, time.Minute, hint)
	assert.Equal(t, hint, d, "a longer Retry-After hint wins over the computed delay")
}

func TestBackoffIgnoresShorterHint(t *testing.T) {
	base := 10 * time.Second
	d := Backoff(1, base, time.Minute, time.Millisecond)
	assert.GreaterOrEqual(t, d, base/2, "a hint shorter than the computed delay is ignored")
}

func TestBackoffJitterVaries(t *testing.T) {
	seen := make(map[time.Duration]struct{})
	for i := 0; i < 50; i++ {
		seen[Backoff(3, time.Second, time.Minute, 0)] = struct{}{}
	}
	assert.Greater(t, len(seen), 1, "jitter should spread retry delays")
}
