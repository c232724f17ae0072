// Package main is the entry point for the deke CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relicta-tech/deke/internal/cli"
)

// Version information set by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	done := make(chan struct{})

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down...\n", sig)
		cancel()

		shutdownTimer := time.NewTimer(shutdownTimeout)
		defer shutdownTimer.Stop()

		// Wait for either: graceful completion, timeout, or second signal
		select {
		case <-done:
			return
		case <-shutdownTimer.C:
			fmt.Fprintf(os.Stderr, "\nShutdown timeout (%v) exceeded, forcing exit\n", shutdownTimeout)
			os.Exit(cli.ExitCanceled)
		case sig = <-sigChan:
			fmt.Fprintf(os.Stderr, "\nReceived second signal %v, forcing exit\n", sig)
			os.Exit(cli.ExitCanceled)
		}
	}()

	cli.SetVersionInfo(version, commit, date)

	var exitCode int
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := cli.ExecuteContext(ctx)
		if err != nil && ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Operation canceled")
			exitCode = cli.ExitCanceled
			return
		}
		exitCode = cli.ExitCode(err)
		// A failing policy already printed its verdict.
		if exitCode == cli.ExitError {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}()

	wg.Wait()

	close(done)
	signal.Stop(sigChan)
	cancel()

	cli.Cleanup()

	os.Exit(exitCode)
}
