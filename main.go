package main

import "github.com/audiolibrelab/routemix/cmd"

func main() {
	cmd.Execute()
}
