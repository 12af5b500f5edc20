package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/migrations"
	"github.com/askdb/askdb/internal/query/sqlexec"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	flag.Parse()

	cfg, err := config.LoadFromEnv("askdb-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "ASKDB_DATABASE_URL (or DATABASE_URL) is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, dialect, err := sqlexec.Open(ctx, sqlexec.DBConfig{
		URL:         cfg.Database.URL,
		PingTimeout: cfg.Database.Timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner, err := migrations.NewRunner(string(dialect))
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration setup failed: %v\n", err)
		os.Exit(1)
	}
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
	case "status":
		status, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		for _, item := range status {
			state := "pending"
			if item.Applied {
				state = "applied"
			}
			fmt.Printf("%06d %s\n", item.Version, state)
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
