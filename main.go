package main

import (
	"log"
	"os"
	"path/filepath"
	"warden-bot/bot"
	"warden-bot/config"
	"warden-bot/handlers"
	"warden-bot/utils/database/casestore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), os.ModePerm); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := casestore.Init(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Error initializing case store: %v", err)
	}

	b, err := bot.New(cfg, store)
	if err != nil {
		log.Fatalf("Error creating bot: %v", err)
	}

	handlers.Register(b)
	defer b.Close()

	b.Run()
}
