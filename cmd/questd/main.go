package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"pubkey-quest/engine/internal/app"
	"pubkey-quest/engine/internal/config"
)

func main() {
	stub := flag.Bool("stub", false, "run the in-process quest server and sync against it")
	server := flag.String("server", "", "quest server base URL (overrides QUEST_SERVER_URL)")
	npub := flag.String("npub", "", "player identity key (overrides QUEST_NPUB)")
	save := flag.String("save", "", "save identifier (overrides QUEST_SAVE_ID)")
	observer := flag.String("observer", "", "diagnostics listen address (overrides QUEST_OBSERVER_ADDR)")
	flag.Parse()

	cfg, err := config.ParseEnv()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *stub {
		cfg.Stub = true
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *npub != "" {
		cfg.Npub = *npub
	}
	if *save != "" {
		cfg.SaveID = *save
	}
	if *observer != "" {
		cfg.ObserverAddr = *observer
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, app.Options{Config: &cfg}); err != nil {
		log.Fatalf("%v", err)
	}
}
