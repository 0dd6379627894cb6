package main

import (
	"fmt"
	"os"

	"github.com/tphakala/leafnet-go/cmd"
	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/conf"
	"github.com/tphakala/leafnet-go/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = buildinfo.UnknownValue
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings := &conf.Settings{}
	build := buildinfo.NewContext(version, buildDate, "")

	rootCmd := cmd.RootCommand(settings, build)
	err := rootCmd.Execute()

	// Flush and close file output before exit
	_ = logger.Global().Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
