package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_AdvancesPerRead(t *testing.T) {
	clock := NewFakeClock(time.Millisecond)

	a := clock.Now()
	b := clock.Now()

	assert.Equal(t, time.Millisecond, b.Sub(a))
	assert.Equal(t, 2, clock.Reads())
}

func TestFakeClock_Reset(t *testing.T) {
	clock := NewFakeClock(time.Second)
	first := clock.Now()
	clock.Now()

	clock.Reset()

	assert.Equal(t, first, clock.Now())
}

func TestFakeClock_ConcurrentReads(t *testing.T) {
	clock := NewFakeClock(time.Microsecond)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				clock.Now()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, clock.Reads())
}
