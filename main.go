package main

import (
	"fmt"

	"github.com/vespo92/rhizome/cli"
)

func main() {
	if err := cli.Start(); err != nil {
		fmt.Println(err)
	}
}
