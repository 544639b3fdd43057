// termphyrio - an SSH client that keeps several interactive shells open
// and switches between them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"termphyrio/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "termphyrio: %v\n", err)
		os.Exit(1)
	}
}
