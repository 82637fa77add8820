package main

import "github.com/civicsquare/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
