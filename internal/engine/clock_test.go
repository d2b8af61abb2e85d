package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NewClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current(), "new clock should start at 0")
}

func TestClock_Next_Incrementing(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(3), c.Next())
	assert.Equal(t, int64(3), c.Current())
}

func TestClock_ConcurrentReaders(t *testing.T) {
	c := NewClock()
	const steps = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := int64(0)
		for i := 0; i < steps; i++ {
			now := c.Current()
			assert.GreaterOrEqual(t, now, last, "clock went backwards")
			last = now
		}
	}()
	for i := 0; i < steps; i++ {
		c.Next()
	}
	wg.Wait()
	assert.Equal(t, int64(steps), c.Current())
}
