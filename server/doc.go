// Package server binds a named game server to its data store, its game
// module and the screen session it runs in, and implements the builtin
// server commands: setup, start, stop, status, message, connect, dump and
// set.
//
// Data stores live in <core.data_dir>/<name>.json. Commands that change the
// data store hold its lock for their whole run and reload it first, so two
// alphagsm processes never interleave writes to the same server.
package server
