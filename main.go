package main

import (
	"github.com/trashcan/teslacam-stack/cmd"
)

var version string

func main() {
	cmd.Execute(version)
}
