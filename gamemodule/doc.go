// Package gamemodule defines what alphagsm needs to know about each kind of
// game server, and keeps a registry of the kinds it supports.
//
// A Module configures, installs, starts, stops and talks to one kind of
// server. Modules are stateless; everything they remember lives in the
// server's data store. Modules register themselves from init under a
// stable dotted id:
//
//	func init() {
//	    gamemodule.Register("minecraft.vanilla", func() gamemodule.Module { return &Vanilla{} })
//	}
//
// Servers record the id they were created with and resolve it once with
// Lookup when they are loaded.
package gamemodule
