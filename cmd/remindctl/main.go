// Command remindctl edits the reminder calendar file directly, without the
// bot running.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
