package main

import (
	"github.com/oneconcern/profilestore/cmd/profilestore/cmd"
)

func main() {
	cmd.Execute()
}
