package main

import "github.com/timvw/pane-tracker/cmd"

func main() {
	cmd.Execute()
}
