// The main package for the metis executable.
package main

import (
	"github.com/metisreader/metis/cmd"
)

func main() {
	cmd.Execute()
}
