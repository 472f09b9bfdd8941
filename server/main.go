package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	var db *DB
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("open db %s: %v", cfg.DBPath, err)
		}
		defer db.Close()
	}

	journal := NewJournal(db, cfg.ArchiveDir)

	auth, err := NewAuth(db, cfg.Password)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	opts := cfg.WorldOptions()
	opts.Journal = journal
	worlds := NewWorldManager(cfg.DefaultWorld, cfg.MaxWorlds, opts)
	for _, name := range cfg.Worlds {
		if worlds.GetOrCreate(name) == nil {
			log.Printf("world %s not started: limit of %d reached", name, cfg.MaxWorlds)
		}
	}

	hub := NewHub(cfg, worlds, auth, journal)
	go hub.Run()

	mux := SetupRoutes(hub, cfg.PublicURL)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if auth.RequiresPassword() {
			log.Printf("Server password required")
		}
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	server.Close()
	worlds.StopAll()
	journal.Stop()
}
