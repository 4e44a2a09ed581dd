package main

import "github.com/cmas-go/cmas/internal/cli"

func main() {
	cli.Execute()
}
