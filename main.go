package main

import (
	"context"
	"os"

	"github.com/gokkuu100/wakiliweb-sub002/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
