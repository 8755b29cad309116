package solver

import (
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"
)

var (
	verbose = flag.Bool("verbose", false, "Enable verbose test output")

	testStartTime time.Time
)

// TestMain times the package run and honors -verbose
func TestMain(m *testing.M) {
	flag.Parse()

	testStartTime = time.Now()
	if *verbose {
		log.Println("Verbose testing enabled")
	}

	fmt.Printf("Running tests in package: github.com/speedrun-hq/speedrun-intents/pkg/solver\n")
	exitCode := m.Run()

	fmt.Printf("Tests completed in %v\n", time.Since(testStartTime))
	os.Exit(exitCode)
}
