package main

import "github.com/atikulmunna/kitsune/internal/cmd"

func main() {
	cmd.Execute()
}
