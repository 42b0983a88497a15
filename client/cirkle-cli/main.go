package main

import "Cirkle/client/cirkle-cli/cmd"

func main() {
	cmd.Execute()
}
