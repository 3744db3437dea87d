package main

import (
	"context"
	"log"
	"os"

	"github.com/mzabaleta/veloloop/internal/adapters/postgres"
	"github.com/mzabaleta/veloloop/internal/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("veloloop-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Println("all migrations applied")
	case "down":
		if _, err := db.Pool.Exec(ctx, "DROP TABLE IF EXISTS saved_routes"); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Println("schema dropped")
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}
