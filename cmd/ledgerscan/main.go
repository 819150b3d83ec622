package main

import "github.com/tuanvu-dev/ledgerscan/internal/cli"

func main() {
	cli.Execute()
}
