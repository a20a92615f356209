package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, K: 2}
	assert.Equal(t, time.Duration(0), b.Delay())

	b.Failure()
	assert.Equal(t, 100*time.Millisecond, b.Next())
	d := b.Delay()
	assert.True(t, d > 0 && d <= 100*time.Millisecond, "delay=%s", d)

	b.Failure()
	assert.Equal(t, 200*time.Millisecond, b.Next())
	for i := 0; i < 10; i++ {
		b.Failure()
	}
	assert.Equal(t, time.Second, b.Next())

	b.Update(true)
	assert.Equal(t, time.Duration(0), b.Delay())
	assert.Equal(t, 100*time.Millisecond, b.Next())
}
