// Command sdengine is the engine's CLI: compile a project, run it to
// completion or to a given time, inspect a model's variables and
// dependency edges, or serve the interactive control surface over a
// websocket.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
