// Command polyexpr compiles and evaluates sandboxed expressions from the command line.
package main

import (
	"os"

	"github.com/robbyt/go-polyexpr/isolation/subprocess"
)

func main() {
	// The subprocess runtime re-executes this binary as its isolation child.
	subprocess.ServeIfChild()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
