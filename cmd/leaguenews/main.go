package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/leaguenews/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error("leaguenews failed", "err", err)
		os.Exit(1)
	}
}
