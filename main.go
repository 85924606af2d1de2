package main

import "github.com/kozaktomas/photo-styler/cmd"

func main() {
	cmd.Execute()
}
