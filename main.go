package main

import "github.com/tanq16/hfmirror/cmd"

func main() {
	cmd.Execute()
}
