package main

import (
	"os"

	"github.com/speedrun-hq/speedrun-intents/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
