package main

import (
	"os"

	"github.com/DawoodTahir/MCP-Chatbot/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
