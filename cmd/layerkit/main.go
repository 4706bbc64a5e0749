package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Fepozopo/layerkit/pkg/cli"
	"github.com/Fepozopo/layerkit/pkg/config"
	"github.com/Fepozopo/layerkit/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	logging.SetLogger(logging.NewStderr(logging.ParseLevel(cfg.Log.Level)))

	if err := cli.RunCLI(context.Background(), cfg, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
