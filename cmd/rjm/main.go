package main

import (
	"os"

	"github.com/Usmanfawad/rjm-backend-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
