package main

import "dockhand/cmd/cli"

func main() {
	cli.Execute()
}
