// The main package for the linkpreview executable.
package main

import "github.com/JakeFAU/linkpreview/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
