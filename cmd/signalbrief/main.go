package main

import (
	"signalbrief/cmd/handlers"
	"signalbrief/internal/logger"
)

func main() {
	logger.Init() // Initialize the logger
	handlers.Execute()
}
