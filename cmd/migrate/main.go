// Command migrate applies crawlkit's goose migrations to the configured
// database, creating the default url queue table used by cmd/crawl and
// by the schema that per-session DbUrlList tables are patterned on.
package main

import (
	"database/sql"
	"embed"
	"flag"
	"log"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"crawlkit/common"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration instead of applying pending ones")
	status := flag.Bool("status", false, "print migration status and exit")
	flag.Parse()

	dsn := common.GetEnv("CRAWLKIT_DB_DSN", "file:crawlkit.db?_busy_timeout=5000")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatalf("failed to set goose dialect: %v", err)
	}
	goose.SetBaseFS(migrationsFS)

	switch {
	case *status:
		if err := goose.Status(db, "migrations"); err != nil {
			log.Fatalf("migration status error: %v", err)
		}
	case *down:
		if err := goose.Down(db, "migrations"); err != nil {
			log.Fatalf("migration down error: %v", err)
		}
	default:
		if err := goose.Up(db, "migrations"); err != nil {
			log.Fatalf("migration up error: %v", err)
		}
		log.Printf("migrations applied against %s", dsn)
	}
}
