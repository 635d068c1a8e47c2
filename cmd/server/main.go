package main

import (
	"flag"
	"log"
	"net/http"

	"dayboard/internal/config"
	"dayboard/internal/serverapp"
)

func main() {
	configPath := flag.String("config", "dayboard.yml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	app, err := serverapp.New(serverapp.Options{
		Config: cfg,
		Logger: log.Default(),
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}
	defer app.Close()

	log.Printf("listening on %s (store: %s)", cfg.Server.Addr, cfg.Store.Backend)
	log.Fatal(http.ListenAndServe(cfg.Server.Addr, app.Handler))
}
