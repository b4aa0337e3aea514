package main

import "github.com/gonkalabs/piiscan/internal/cli"

func main() {
	cli.Main()
}
