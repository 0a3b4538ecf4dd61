package main

import "github.com/example/slotscout/cmd"

func main() {
	cmd.Execute()
}
