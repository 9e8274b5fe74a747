package main

import "github.com/mchmarny/biasprobe/pkg/cli"

func main() {
	cli.Execute()
}
