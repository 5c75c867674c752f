// The main package for the racecards executable.
package main

import (
	"github.com/JakeFAU/racecards-crawler/cmd"
)

func main() {
	cmd.Execute()
}
