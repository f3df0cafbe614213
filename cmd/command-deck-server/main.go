// @title Gemini Command Deck API
// @version 1.0
// @description Generative-text gateway with quota-rotated accounts, persistent memory, sandbox fleet management and agent planning.
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"command-deck-server-go/internal/bootstrap"
)

func main() {
	fmt.Printf("[%s] [INFO] [Boot] starting command-deck-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "command-deck-server failed: %v\n", err)
		os.Exit(1)
	}
}
