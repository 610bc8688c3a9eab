package main

import (
	"Friday_1.0/cmd/friday/cmd"
)

func main() {
	cmd.Execute()
}
