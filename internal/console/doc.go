// Package console is an interactive inspection shell for a running or
// completed simulation, grounded on the teacher's cmd/gobfdctl/commands/
// shell.go: a hand-rolled bufio.Scanner REPL, not reeflective/console
// (the teacher lists that dependency in go.mod but its own shell command
// never imports it, so neither does this one — see DESIGN.md).
//
// Where gobfdctl's shell dispatches into a cobra command tree talking to
// a remote daemon over ConnectRPC, this shell has no remote control
// plane to dial: it reads directly from a Registry of in-process nodes
// built by cmd/blesim, matching spec.md Section 6's "inspect a running/
// completed simulation" surface without inventing a network protocol.
package console
