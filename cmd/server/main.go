package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/workbenchd/workbench/internal/infrastructure/config"
	"github.com/workbenchd/workbench/internal/infrastructure/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	agentURL := flag.String("agent", "", "Agent backend base URL (overrides AGENT_URL)")
	storeURL := flag.String("store", "", "Persistence service base URL (overrides STORE_URL)")
	manifest := flag.String("workspace", "", "Workspace manifest path (overrides WORKSPACE_MANIFEST)")
	dev := flag.Bool("dev", false, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *agentURL != "" {
		cfg.Upstream.AgentURL = *agentURL
	}
	if *storeURL != "" {
		cfg.Upstream.StoreURL = *storeURL
	}
	if *manifest != "" {
		cfg.Workspace.ManifestPath = *manifest
	}
	if *dev {
		cfg.Logging.Development = true
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
