// Command reconcile runs one structural reconciliation pass against the
// database: template documents are normalized to canonical shape, active
// flag drift is repaired, and the legacy user_data table is migrated into
// day_entries when present. Safe to re-run; every step is idempotent.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"daygrid/api/internal/config"
	"daygrid/api/internal/reconcile"
	"daygrid/api/internal/store"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	runner := reconcile.NewRunner(store.NewPostgresStore(db))
	report, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("reconciliation failed: %v", err)
	}

	log.Printf("reconciliation done: examined=%d rewritten=%d malformed=%d skipped=%d rolesRepaired=%v legacyMigrated=%d",
		report.TemplatesExamined,
		report.TemplatesRewritten,
		report.Malformed,
		report.SkippedConflicts,
		report.RolesRepaired,
		report.LegacyRowsMigrated,
	)
}
