package main

import "github.com/example/slotclaim/cmd"

func main() {
	cmd.Execute()
}
