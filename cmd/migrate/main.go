package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"gate_bot/migrations"
)

const usage = `Usage: migrate [-db path] <command>

Commands:
  up          Migrate to the latest version
  up-one      Migrate one version up
  down        Roll back one version
  status      Show migration status
  version     Show current version
  reset       Roll back all migrations`

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/bot.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	if dir := filepath.Dir(*dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Fatalf("create data directory: %v", err)
		}
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	p, err := migrations.NewProvider(db)
	if err != nil {
		_ = db.Close()
		log.Fatalf("%v", err)
	}
	defer func() { _ = p.Close() }()

	ctx := context.Background()
	cmd := args[0]
	switch cmd {
	case "up":
		results, upErr := p.Up(ctx)
		for _, r := range results {
			fmt.Println(r)
		}
		err = upErr
	case "up-one":
		r, upErr := p.UpByOne(ctx)
		if r != nil {
			fmt.Println(r)
		}
		err = upErr
	case "down":
		r, downErr := p.Down(ctx)
		if r != nil {
			fmt.Println(r)
		}
		err = downErr
	case "status":
		var statuses []*goose.MigrationStatus
		statuses, err = p.Status(ctx)
		for _, s := range statuses {
			applied := "pending"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-20s %s\n", applied, filepath.Base(s.Source.Path))
		}
	case "version":
		var v int64
		v, err = p.GetDBVersion(ctx)
		if err == nil {
			fmt.Printf("version: %d\n", v)
		}
	case "reset":
		results, downErr := p.DownTo(ctx, 0)
		for _, r := range results {
			fmt.Println(r)
		}
		err = downErr
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
