package main

import "github.com/audiolibrelab/autopause/cmd"

func main() {
	cmd.Execute()
}
