package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// schema is applied idempotently; there is a single table, so a full
// migration framework would be more machinery than schema.
const schema = `
CREATE TABLE IF NOT EXISTS cases (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	category        TEXT NOT NULL,
	trigger_message TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	priority        TEXT NOT NULL DEFAULT 'medium',
	reviewer_reply  TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	resolved_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_cases_status ON cases (status, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cases_session ON cases (session_id) WHERE status != 'resolved';
`

func main() {
	_ = godotenv.Load()

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	log.Println("schema up to date")
}
