package main

import "github.com/RyanBlaney/mixdown/cmd"

func main() {
	cmd.Execute()
}
