package usecase_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"coffeeshop/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoroutineDispatcher_OutlivesRequestContext(t *testing.T) {
	d := usecase.NewGoroutineDispatcher(discardLogger(), time.Second)

	reqCtx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})

	d.Dispatch(reqCtx, "test", func(ctx context.Context) error {
		close(started)
		<-release
		if ctx.Err() == nil {
			ran.Store(true)
		}
		return nil
	})

	<-started
	// レスポンスを返した後にリクエストが終わる
	cancel()
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, d.Wait(waitCtx))
	assert.True(t, ran.Load())
}

func TestGoroutineDispatcher_ErrorAndPanicAreContained(t *testing.T) {
	d := usecase.NewGoroutineDispatcher(discardLogger(), time.Second)

	d.Dispatch(context.Background(), "fails", func(ctx context.Context) error {
		return errors.New("smtp down")
	})
	d.Dispatch(context.Background(), "panics", func(ctx context.Context) error {
		panic("boom")
	})

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, d.Wait(waitCtx))
}

func TestGoroutineDispatcher_WaitHonorsContext(t *testing.T) {
	d := usecase.NewGoroutineDispatcher(discardLogger(), time.Minute)
	release := make(chan struct{})
	defer close(release)

	d.Dispatch(context.Background(), "slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(waitCtx), context.DeadlineExceeded)
}

func TestInlineDispatcher_RunsBeforeReturning(t *testing.T) {
	d := usecase.NewInlineDispatcher(discardLogger())
	var n int

	d.Dispatch(context.Background(), "count", func(ctx context.Context) error {
		n++
		return nil
	})
	assert.Equal(t, 1, n)
}
