package main

import "github.com/notargets/regionmg/cmd"

func main() {
	cmd.Execute()
}
