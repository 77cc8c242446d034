package main

import "github.com/yakoovad/pr-daemon/internal/cmd"

func main() {
	cmd.Execute()
}
