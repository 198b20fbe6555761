package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ErrTimeout is wrapped by errors returned from WithTimeout when d elapses.
var ErrTimeout = errors.New("timed out")

type timeoutError struct {
	label string
	d     time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %ss", e.label, strconv.FormatFloat(e.d.Seconds(), 'f', -1, 64))
}

func (e *timeoutError) Unwrap() error { return ErrTimeout }

// WithTimeout runs fn with a deadline of d. When the deadline passes first the
// error reads "<label> timed out after <seconds>s"; fn keeps its cancelled context.
func WithTimeout[T any](ctx context.Context, d time.Duration, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	if label == "" {
		label = "Operation"
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(tctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		return r.v, r.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", label, ctx.Err())
		}
		return zero, &timeoutError{label: label, d: d}
	}
}

// SafeRefresh refreshes the session with a timeout. Failures are logged and
// swallowed so callers can carry on with their existing token; the returned
// token is nil in that case.
func SafeRefresh(ctx context.Context, store *Store, refreshToken string, d time.Duration, logger *zap.Logger) *oauth2.Token {
	if logger == nil {
		logger = zap.NewNop()
	}
	if d <= 0 {
		d = 5 * time.Second
	}
	tok, err := WithTimeout(ctx, d, "Session refresh", func(ctx context.Context) (*oauth2.Token, error) {
		t, _, err := store.Refresh(ctx, refreshToken)
		return t, err
	})
	if err != nil {
		logger.Warn("session refresh skipped", zap.Error(err))
		return nil
	}
	return tok
}
