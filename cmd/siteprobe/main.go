package main

import (
	"context"
	"fmt"
	"os"

	"github.com/siteprobe/siteprobe/internal/commands"
)

var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
