// Command visiq is the entry point for the VisiQ-GPT document assistant.
// It provides a CLI interface (via Cobra) for indexing documents and asking
// questions about them, plus an HTTP server exposing the same pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/Mihir-M112/VisiQ-GPT/cmd/visiq/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
