package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevoDB/strata/pkg/common/log"
	"github.com/KevoDB/strata/pkg/engine"
	"github.com/KevoDB/strata/pkg/httpapi"
)

// runServer serves db over HTTP until SIGINT or SIGTERM
func runServer(db *engine.DB, addr string, logger log.Logger) error {
	server := httpapi.NewServer(db, addr, logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	fmt.Printf("Strata server started on %s\n", server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	if err := server.Stop(); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	// The database is closed by the defer in main
	fmt.Println("Shutdown complete")
	return nil
}
