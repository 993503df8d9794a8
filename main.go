package main

import "task-manager/commands"

func main() {
	commands.Execute()
}
