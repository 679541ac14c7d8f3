package main

import (
	"os"

	"github.com/simonhull/baseplate/internal/commands"
)

func main() {
	rootCmd := commands.RootCmd()
	commands.AddCommands(rootCmd)
	os.Exit(commands.Execute(rootCmd))
}
