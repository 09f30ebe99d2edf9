package main

import "github.com/oshokin/enginectl/cmd/enginectl/cmd"

func main() {
	cmd.Execute()
}
