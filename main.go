package main

import (
	"os"

	"github.com/cloaked-ai/cloak/cli"
	"github.com/cloaked-ai/cloak/pkg/logger"
)

func main() {
	if err := cli.Execute(); err != nil {
		logger.GetDefault().Error("command failed", "error", err)
		os.Exit(1)
	}
}
