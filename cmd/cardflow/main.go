// Command cardflow is the one-shot CLI: submit a card image, inspect job
// status, retry or cancel jobs, and export parsed contacts.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cardflow:", err)
		os.Exit(1)
	}
}
