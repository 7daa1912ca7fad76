package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/markis/streammd/internal/args"
)

// main function to load settings and stream the input through the renderer.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, outFile: os.Stdout}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, args.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
