package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsJobs(t *testing.T) {
	js, err := NewJobSystem(4, 8)
	require.NoError(t, err)

	var mutex sync.Mutex
	results := make([]int, 0)
	var callbacks atomic.Int32

	for i := 0; i < 20; i++ {
		err := js.Submit(metadata.JobTask{
			Name:        "square",
			InputParams: i,
			OnStart: func(params interface{}) (interface{}, error) {
				n := params.(int)
				return n * n, nil
			},
			OnComplete: func(result interface{}) {
				mutex.Lock()
				results = append(results, result.(int))
				mutex.Unlock()
			},
			OnCompletionCallback: func() { callbacks.Add(1) },
		})
		require.NoError(t, err)
	}
	js.Wait()

	assert.Len(t, results, 20)
	assert.Equal(t, int32(20), callbacks.Load())
	require.NoError(t, js.Shutdown())
}

func TestJobFailures(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	boom := errors.New("boom")
	var failures []error
	var mutex sync.Mutex
	onFailure := func(err error) {
		mutex.Lock()
		failures = append(failures, err)
		mutex.Unlock()
	}

	require.NoError(t, js.Submit(metadata.JobTask{
		Name:      "error",
		OnStart:   func(interface{}) (interface{}, error) { return nil, boom },
		OnFailure: onFailure,
		OnComplete: func(interface{}) {
			t.Error("OnComplete called for a failed job")
		},
	}))
	require.NoError(t, js.Submit(metadata.JobTask{
		Name:      "panic",
		OnStart:   func(interface{}) (interface{}, error) { panic("worker exploded") },
		OnFailure: onFailure,
	}))
	js.Wait()

	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0], boom)
	assert.Contains(t, failures[1].Error(), "worker exploded")
}

func TestSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(2, 0)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	err = js.Submit(metadata.JobTask{OnStart: func(interface{}) (interface{}, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrJobSystemClosed)
	assert.Panics(t, func() { _ = js.Submit(metadata.JobTask{Name: "empty"}) })
}

func TestAddWorkNonBlockingDoesNotWaitForAWorker(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, js.Submit(metadata.JobTask{
		Name: "busy",
		OnStart: func(interface{}) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		},
	}))
	<-started

	// the only worker is busy and the queue is unbuffered
	var ran atomic.Bool
	returned := make(chan struct{})
	go func() {
		js.AddWorkNonBlocking(metadata.JobTask{
			Name:       "deferred",
			OnStart:    func(interface{}) (interface{}, error) { return nil, nil },
			OnComplete: func(interface{}) { ran.Store(true) },
		})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("AddWorkNonBlocking blocked on a busy worker")
	}
	assert.False(t, ran.Load())

	close(release)
	assert.Eventually(t, ran.Load, time.Second, time.Millisecond)
	require.NoError(t, js.Shutdown())

	// dropped with a warning once shut down
	assert.NotPanics(t, func() {
		js.AddWorkNonBlocking(metadata.JobTask{
			Name:    "late",
			OnStart: func(interface{}) (interface{}, error) { return nil, nil },
		})
	})
}
