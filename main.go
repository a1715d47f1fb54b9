package main

import "github.com/timvw/prompt-patrol/cmd"

func main() {
	cmd.Execute()
}
