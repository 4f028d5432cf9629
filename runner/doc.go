// Package runner drives agents and teams through turns.
//
// A Runner owns one target. Start runs a new turn to completion or until a
// gated tool call suspends it; Resume continues a paused record once the
// caller has resolved its pending invocations. StartStream and ResumeStream
// do the same on a background goroutine and deliver the lifecycle events on a
// channel that is closed after the terminal event.
//
//	r := runner.New(a)
//	rec, err := r.Start(ctx, runner.Input{SessionID: "s1", Message: "hi"})
//	for rec.IsPaused() {
//		for _, inv := range rec.Pending() {
//			inv.Confirm()
//		}
//		rec, err = r.Resume(ctx, rec)
//	}
//
// Tool calls of one model response run concurrently; their results are
// folded back into the history in the order the model emitted them.
package runner
