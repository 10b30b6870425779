package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/codecheck/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	err := cmd.NewApp(version).Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
