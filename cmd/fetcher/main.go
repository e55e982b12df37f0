package main

import "github.com/paulpham157/neptune-fetcher/internal/cli"

func main() {
	cli.Execute()
}
