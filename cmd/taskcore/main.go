// Command taskcore is an operational CLI around the task engine: creating
// and driving task runs interactively, listing and triaging recoverable
// tasks after a crash, and inspecting a task's event/artifact history.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
