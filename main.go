package main

import "youbble/cmd"

func main() {
	cmd.Execute()
}
