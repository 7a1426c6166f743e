package main

import "github.com/opensoc/notebooklets/cmd/nblets/cmd"

func main() {
	cmd.Execute()
}
