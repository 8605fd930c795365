package main

import "github.com/silverkite/silverkite/cmd"

func main() {
	cmd.Execute()
}
