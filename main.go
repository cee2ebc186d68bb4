package main

import (
	"github.com/wicketlabs/pavilion/cmd"
)

func main() {
	cmd.Execute()
}
