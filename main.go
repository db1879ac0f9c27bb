package main

import (
	"barnacle/cmd"
	"barnacle/logger"

	_ "go.uber.org/automaxprocs/maxprocs"
)

func main() {
	defer logger.Sync() // The logger itself is initialized once configuration is loaded
	cmd.Execute()
}
