package testutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ContextWithTimeout создаёт context с timeout и автоматически отменяет его при завершении теста.
func ContextWithTimeout(t testing.TB, duration time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	t.Cleanup(cancel)

	return ctx
}

// RunBackground запускает loop (Start-метод менеджера) в отдельной горутине.
// При завершении теста контекст отменяется и тест ждёт выхода из loop.
// Returns a stop function that cancels the loop early and waits for it.
func RunBackground(t testing.TB, loop func(context.Context) error) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop(ctx) }()

	stopped := false
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("background loop: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("background loop did not stop")
		}
	}
	t.Cleanup(stop)
	return stop
}
