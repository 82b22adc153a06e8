package main

import "github.com/mk-162/fixMate/cmd"

func main() {
	cmd.Execute()
}
