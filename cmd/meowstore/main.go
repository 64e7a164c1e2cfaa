package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"meowstore/internal/cli"
)

// set build metadata
var version = "dev"

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	cmd := cli.NewRootCommand(version)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "meowstore: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
