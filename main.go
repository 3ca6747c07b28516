package main

import "github.com/example/freshcheck/cmd"

func main() {
	cmd.Execute()
}
