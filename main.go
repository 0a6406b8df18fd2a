package main

import "Melodeck/cmd"

func main() {
	cmd.Execute()
}
