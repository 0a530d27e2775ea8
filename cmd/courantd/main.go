package main

import (
	"flag"
	"os"

	"github.com/courant-live/courant/internal/config"
	"github.com/courant-live/courant/internal/logging"
	"github.com/courant-live/courant/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	srv, err := server.New(*cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("server setup failed")
	}
	defer srv.Close()

	// Default account so a fresh install is usable immediately.
	if err := srv.Auth().Seed("admin", "admin@courant.local", "admin", "ADMIN"); err != nil {
		log.Fatal().Err(err).Msg("seeding admin user failed")
	}
	log.Info().Msg("default admin user available: admin / admin")

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
