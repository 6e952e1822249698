// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bandtap/cmd"
	applog "bandtap/internal/log"
	"bandtap/pkg/build"
)

// main has three phases:
//
// 1. Startup: build information, signal handling and flag parsing.
// 2. Capture: the selected command runs until it finishes or a signal
//    arrives.
// 3. Shutdown: the session and every consumer are closed by the command
//    before it returns.
func main() {
	if err := build.Initialize(); err != nil {
		applog.Debugf("development build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		applog.Fatalf("%v", err)
	}
}
