package main

import "github.com/hearthlab/heater-control/cmd"

func main() {
	cmd.Execute()
}
