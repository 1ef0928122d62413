package main

import "github.com/nomirelay/nomirelay/cmd"

func main() {
	cmd.Execute()
}
