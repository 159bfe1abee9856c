package lifecycle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-gen-api/internal/domain/entity"
)

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		from    entity.GenerationStatus
		action  entity.Action
		want    entity.GenerationStatus
		wantErr bool
	}{
		{entity.GenerationStatusDraft, entity.ActionNext, entity.GenerationStatusRunning, false},
		{entity.GenerationStatusDraft, entity.ActionCancel, entity.GenerationStatusCanceled, false},
		{entity.GenerationStatusRunning, entity.ActionNext, entity.GenerationStatusRunning, true},
		{entity.GenerationStatusRunning, entity.ActionCancel, entity.GenerationStatusCanceled, false},
		{entity.GenerationStatusCompleted, entity.ActionNext, entity.GenerationStatusCompleted, true},
		{entity.GenerationStatusCompleted, entity.ActionCancel, entity.GenerationStatusCompleted, true},
		{entity.GenerationStatusFailed, entity.ActionNext, entity.GenerationStatusFailed, true},
		{entity.GenerationStatusFailed, entity.ActionCancel, entity.GenerationStatusFailed, true},
		{entity.GenerationStatusCanceled, entity.ActionNext, entity.GenerationStatusCanceled, true},
		{entity.GenerationStatusCanceled, entity.ActionCancel, entity.GenerationStatusCanceled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, err := Transition(tt.from, tt.action)
			assert.Equal(t, tt.want, got)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsConflict(err))

			var te *TransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.from, te.Status)
			assert.Equal(t, tt.action, te.Action)
			assert.Contains(t, err.Error(), string(tt.from))
			assert.Contains(t, err.Error(), string(tt.action))
		})
	}
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, entity.GenerationStatusFailed, outcomeStatus(false, false))
	assert.Equal(t, entity.GenerationStatusFailed, outcomeStatus(false, true))
	assert.Equal(t, entity.GenerationStatusRunning, outcomeStatus(true, false))
	assert.Equal(t, entity.GenerationStatusCompleted, outcomeStatus(true, true))
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("g-1")
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	assert.Equal(t, 1, km.Len())
}
