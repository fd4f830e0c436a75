package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// レスポンスを待たせない後処理（カート削除・メール）を流す。
// 失敗はログに残すだけで呼び出し元には返さない。
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// goroutineで実行する。Waitでシャットダウン時に待てる。
type GoroutineDispatcher struct {
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewGoroutineDispatcher(log *slog.Logger, timeout time.Duration) *GoroutineDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoroutineDispatcher{log: log, timeout: timeout}
}

func (d *GoroutineDispatcher) Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) {
	// リクエストが終わってもキャンセルされないようにする
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.log.ErrorContext(taskCtx, "side effect panicked", slog.String("task", name), slog.String("panic", fmt.Sprint(r)))
			}
		}()

		runTask(taskCtx, d.log, name, fn)
	}()
}

// 実行中の後処理が終わるまで待つ。ctxが先に終わったらctx.Err()。
func (d *GoroutineDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// その場で実行する（テストとCLI用）
type InlineDispatcher struct {
	log *slog.Logger
}

func NewInlineDispatcher(log *slog.Logger) *InlineDispatcher {
	return &InlineDispatcher{log: log}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) {
	runTask(ctx, d.log, name, fn)
}

func runTask(ctx context.Context, log *slog.Logger, name string, fn func(ctx context.Context) error) {
	start := time.Now()
	if err := fn(ctx); err != nil {
		log.ErrorContext(ctx, "side effect failed",
			slog.String("task", name),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("err", err),
		)
		return
	}
	log.DebugContext(ctx, "side effect done", slog.String("task", name), slog.Duration("elapsed", time.Since(start)))
}
