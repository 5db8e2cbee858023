// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"fmt"
	"os"
	"runtime/debug"
)

// This output is shown if a panic happens.
const panicOutput = `
!!!!!!!!!!!!!!!!!!!!!!!!!!! MAPSYNC CRASH !!!!!!!!!!!!!!!!!!!!!!!!!!!!

mapsync crashed! This is always indicative of a bug within mapsync.
Please report the crash with the full output below, and if possible the
log produced with MAPSYNC_LOG=trace.

Any map documents that were saved before the crash are still available in
the local storage directory and on the remote server.

!!!!!!!!!!!!!!!!!!!!!!!!!!! MAPSYNC CRASH !!!!!!!!!!!!!!!!!!!!!!!!!!!!
`

// In case multiple goroutines panic concurrently, ensure only the first one
// recovered by PanicHandler starts printing.
var panicMutex = make(chan struct{}, 1)

// PanicHandler is called to recover from an internal panic in mapsync, and
// augments the standard stack trace with a more user friendly error message.
// PanicHandler must be called as a defered function, and must be the first
// defer called at the start of a new goroutine.
func PanicHandler() {
	// Have all managed goroutines checkin here, and prevent them from exiting
	// if there's a panic in progress. While this can't lock the entire runtime
	// to block progress, we can prevent some cases where mapsync may return
	// early before the panic has been printed out.
	panicMutex <- struct{}{}
	defer func() { <-panicMutex }()

	recovered := recover()
	if recovered == nil {
		return
	}

	fmt.Fprint(os.Stderr, panicOutput)
	fmt.Fprint(os.Stderr, recovered, "\n")

	// When called from a deferred function, debug.PrintStack will include the
	// full stack from the point of the pending panic.
	debug.PrintStack()

	// 11 matches SIGSEGV, which is roughly the same type of condition that
	// causes most panics.
	os.Exit(11)
}
