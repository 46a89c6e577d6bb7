package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/keiko/internal/config"
	"github.com/victornm/keiko/internal/server"
	"github.com/victornm/keiko/internal/telemetry"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	telemetry.SetupLogger(os.Stderr, c.Log)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.LoadFromEnv(&c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
