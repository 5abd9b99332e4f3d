package relay_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fwojciec/relay"
)

func TestSession_Cancel(t *testing.T) {
	t.Parallel()

	s := relay.NewSession("sess_1")
	assert.False(t, s.Cancelled())

	s.Cancel()
	assert.True(t, s.Cancelled())

	// Idempotent.
	s.Cancel()
	assert.True(t, s.Cancelled())
}

func TestSession_CancelFromAnotherGoroutine(t *testing.T) {
	t.Parallel()

	s := relay.NewSession("sess_1")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Cancel()
	}()
	wg.Wait()
	assert.True(t, s.Cancelled())
}
