package main

import "github.com/km-arc/go-factory/cmd"

func main() {
	cmd.Execute()
}
