// Package multiplexer runs several child processes at once and interleaves
// their output line by line on a single sink.
//
// A Multiplexer is a single-threaded event loop. It owns processes and the
// pipes they write to, blocks in poll(2) until one of the pipes is readable,
// line-buffers each pipe independently and writes every completed line to its
// Sink prefixed with the process tag:
//
//	mux := multiplexer.New()
//	if _, err := mux.Run("web", exec.Command("./web")); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := mux.Run("db", exec.Command("./db")); err != nil {
//	    log.Fatal(err)
//	}
//	if err := mux.ProcessAll(); err != nil {
//	    log.Fatal(err)
//	}
//	for tag, code := range mux.CheckReturnValues() {
//	    fmt.Println(tag, code)
//	}
//
// Nothing runs between calls: callers drive progress through Process or
// ProcessAll.
//
// # Interruption
//
// A LineCheck attached to a stream is invoked on every completed line. When
// it matches, delivery on that stream pauses, the check is cleared and
// Process returns an *Interrupted carrying the matched line. Lines queued
// behind the match stay buffered and are delivered on the next call.
//
// # Handoff
//
// RunAndWaitForMarker builds on interruption: it runs one process in a scratch
// multiplexer until the process prints a ready marker, then moves the process
// with all of its buffered output into a long-lived multiplexer.
package multiplexer
