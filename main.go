// The main package for the rayin executable.
package main

import (
	"github.com/JakeFAU/rayin-translation/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
