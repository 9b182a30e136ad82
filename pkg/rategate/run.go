package rategate

import (
	"context"
)

// Result carries the outcome of RunAsyncWithResult.
type Result[R any] struct {
	Value R
	Err   error
}

// RunSync waits for admission and then runs action on the calling goroutine.
//
// The slot is released when action returns, fails or panics. Errors from action are
// returned unchanged. If the caller is never admitted, action does not run and the error
// is either ErrGateClosed or wraps both ErrAcquireCanceled and ctx.Err().
//
// ctx only bounds the wait for admission. It is not passed to action and does not limit
// how long action runs.
func (g *RateGate) RunSync(ctx context.Context, action func() error) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.exit()

	return action()
}

// RunAsync is RunSync on a new goroutine. The slot is held until action returns.
//
// The returned channel receives exactly one error (nil on success) after the slot has been
// released, and is then closed.
//
// Example:
//
//	errc := gate.RunAsync(ctx, func() error {
//	    return upload(file)
//	})
//	// ... do other work ...
//	if err := <-errc; err != nil {
//	    log.Printf("upload failed: %v", err)
//	}
func (g *RateGate) RunAsync(ctx context.Context, action func() error) <-chan error {
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		errc <- g.RunSync(ctx, action)
	}()

	return errc
}

// RunAsyncWithArg is RunAsync for an action that takes an argument. arg is passed to
// action unchanged.
func RunAsyncWithArg[A any](g *RateGate, ctx context.Context, action func(A) error, arg A) <-chan error {
	return g.RunAsync(ctx, func() error {
		return action(arg)
	})
}

// RunWithResult waits for admission and runs action on the calling goroutine, returning
// its value. Unlike RunSync, action also receives ctx so it can observe cancellation
// itself. When the caller is not admitted the zero value of R is returned with the error.
func RunWithResult[A, R any](g *RateGate, ctx context.Context, action func(context.Context, A) (R, error), arg A) (R, error) {
	if err := g.acquire(ctx); err != nil {
		var zero R
		return zero, err
	}
	defer g.exit()

	return action(ctx, arg)
}

// RunAsyncWithResult is RunWithResult on a new goroutine. The returned channel receives
// exactly one Result after the slot has been released, and is then closed.
func RunAsyncWithResult[A, R any](g *RateGate, ctx context.Context, action func(context.Context, A) (R, error), arg A) <-chan Result[R] {
	resc := make(chan Result[R], 1)

	go func() {
		defer close(resc)
		value, err := RunWithResult(g, ctx, action, arg)
		resc <- Result[R]{Value: value, Err: err}
	}()

	return resc
}
