package main

import "github.com/hookgate/hookgate/cmd"

func main() {
	cmd.Execute()
}
