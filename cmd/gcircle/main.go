// Command gcircle manages the trust circle of a single device:
// generating its keys, founding a circle, inspecting the stored circle,
// and deciding whether a circle received from another device is trusted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	if err := mainE(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return NewRootCmd().ExecuteContext(ctx)
}
