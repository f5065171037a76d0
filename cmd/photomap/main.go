package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"photomap/internal/cli"
)

const version = "0.3.0"

func main() {
	root := cli.NewRootCmd(cli.NewRoot())

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
