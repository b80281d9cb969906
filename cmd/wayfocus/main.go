package main

import "github.com/wayfocus/wayfocus/cmd/wayfocus/commands"

func main() {
	commands.Execute()
}
