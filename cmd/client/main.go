package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/gophtex/internal/client/cli"
	"github.com/iudanet/gophtex/internal/client/iocli"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	env := cli.Env{
		IO:        iocli.NewStdio(),
		LookupEnv: os.LookupEnv,
		LogOutput: os.Stderr,
		Version:   fmt.Sprintf("%s (built %s, commit %s)", Version, BuildDate, GitCommit),
	}

	err := cli.Run(ctx, env, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
