package main

import "github.com/ManuelReschke/mediabridge/cmd/mediabridge/cmd"

func main() {
	cmd.Execute()
}
