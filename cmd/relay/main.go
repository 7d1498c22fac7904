package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/pozgpt/chat/relayservice"
)

func main() {
	// Best effort; production sets real environment variables.
	_ = godotenv.Load()

	if err := relayservice.Run(); err != nil {
		os.Exit(1)
	}
}
