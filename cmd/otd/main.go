package main

import "github.com/OpenTraceLab/OpenTraceDecode/cmd/otd/cmd"

func main() {
	cmd.Execute()
}
