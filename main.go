package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/steplov/pvtools/src/cli"
)

func main() {
	// Optional .env next to the binary; absence is fine.
	_ = godotenv.Load()
	os.Exit(cli.Execute())
}
