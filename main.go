package main

import (
	"fmt"
	"os"

	"catenary/cmd/catenary"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "catenary: %v\n", err)
		os.Exit(1)
	}
}
