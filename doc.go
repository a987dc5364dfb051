// Package alphagsm runs commands against many game servers at once.
//
// Each server is managed by its own alphagsm process. A Manager starts one
// child per target and multiplexes their output onto a single console, each
// line prefixed with the server it came from:
//
//	mgr := alphagsm.NewManager(
//	    alphagsm.WithConcurrency(4),
//	    alphagsm.WithExecutable("/usr/local/bin/alphagsm"),
//	)
//
//	targets, err := alphagsm.ParseTargets([]string{"mc", "games/tf2"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	codes, err := mgr.Run(ctx, targets, []string{"status"})
//
// Targets written as USER/SERVER run through sudo as that user.
//
// # Starting servers
//
// Start launches targets one at a time. Each child's output is shown as it
// boots; once it prints ReadyMarker it joins the shared console and the next
// target is started, so servers that depend on each other come up in order.
//
// Single-server commands live in package server, the game specific parts in
// package gamemodule and the process multiplexer in package multiplexer.
package alphagsm
