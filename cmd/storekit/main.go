package main

import (
	"os"
)

var version = "dev"

func main() {
	rootCmd.Version = version
	// cobra prints the failing command's error itself.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
