// Package rategate provides a gate that bounds how many operations are admitted within any
// rolling time window, on top of bounding how many run at the same time.
//
// It is meant for throttling calls to a rate limited resource, such as an API with a
// "max N calls per T" policy, while letting callers block, give up through their context,
// and run work either synchronously or on a new goroutine.
//
// # Overview
//
// A RateGate created with New(maxCount, resetSpan) owns two things:
//
//   - a pool of maxCount slots, so no more than maxCount admitted callers are in flight
//   - the release timestamps of the last maxCount callers
//
// To be admitted a caller first takes a slot, then looks at the oldest release timestamp.
// If resetSpan has not passed since that release, the caller sleeps until it has. When the
// caller's work finishes the current time is recorded and the slot is handed back.
//
// Because a slot can only be reused resetSpan after it was last released, any window of
// length resetSpan contains at most maxCount admissions, regardless of arrival order.
// The history starts out filled with timestamps that are infinitely old, so the first
// maxCount callers on a new gate never wait.
//
// # Running Work
//
// Work is always wrapped by one of the Run functions. They share the same admission and
// release rules and differ only in how the outcome is delivered:
//
//	// Blocks until admitted, then runs on the calling goroutine.
//	err := gate.RunSync(ctx, func() error {
//		return client.Ping()
//	})
//
//	// Runs on a new goroutine; the error arrives on the channel.
//	errc := gate.RunAsync(ctx, func() error {
//		return client.Ping()
//	})
//
//	// Passes an argument through to the action.
//	errc = rategate.RunAsyncWithArg(gate, ctx, client.Delete, "user-42")
//
//	// The action also receives ctx and returns a value.
//	resc := rategate.RunAsyncWithResult(gate, ctx, client.Fetch, "user-42")
//	res := <-resc
//	if res.Err != nil {
//		return res.Err
//	}
//
// The slot is released on every exit path, including when the action returns an error or
// panics. Errors returned by the action are passed back unchanged.
//
// # Cancellation
//
// ctx is observed at both places a caller can wait: while waiting for a free slot and
// while sleeping out the window. In both cases the action does not run and the returned
// error matches both ErrAcquireCanceled and the context's own error:
//
//	err := gate.RunSync(ctx, action)
//	if errors.Is(err, rategate.ErrAcquireCanceled) {
//		// Not admitted. errors.Is(err, context.DeadlineExceeded) tells why.
//	}
//
// A caller canceled while sleeping out the window already held a slot. Its slot is
// released and a release timestamp is recorded, so the abandoned attempt still counts
// against the rate. ctx does not bound the action itself; compose your own timeout inside
// the action if it needs one.
//
// # Teardown
//
// Close stops the gate. Waiting callers return ErrGateClosed and later Run calls return
// ErrGateClosed straight away. Callers that were already admitted finish normally. Close
// may be called any number of times.
//
// # Observability
//
// Use WithLogger to receive debug records for delays and cancellations, and WithRecorder
// to export admission events. The metrics package provides Prometheus and Redis backed
// recorders. Stats returns the gate's counters at any time.
package rategate
