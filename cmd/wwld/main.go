// Package main provides the wwld CLI process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/wwld/internal/app"
	"github.com/rbright/wwld/internal/camera/opencv"
)

// main wires signal handling and the OpenCV camera driver to the runner.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := app.Runner{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Open:    opencv.Open,
		Devices: opencv.Probe,
	}
	os.Exit(runner.Execute(ctx, os.Args[1:]))
}
