package main

import (
	"FlowCash/cmd"
)

func main() {
	cmd.Execute()
}
