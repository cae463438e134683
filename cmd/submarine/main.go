// Command submarine is the thin CLI shell over the acquisition and
// chain-execution packages under internal/: it parses flags and the
// order-string query grammar, wires the configured collaborators, and
// prints JSON. All real logic lives in internal/.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
