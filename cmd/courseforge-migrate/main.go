// courseforge-migrate applies the database schema and seeds the
// permission catalog. Run it before starting the API server.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/courseforge/courseforge/pkg/audit"
	"github.com/courseforge/courseforge/pkg/comments"
	"github.com/courseforge/courseforge/pkg/courses"
	"github.com/courseforge/courseforge/pkg/invites"
	"github.com/courseforge/courseforge/pkg/rbac"
	"github.com/courseforge/courseforge/pkg/storage/postgres"
	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("COURSEFORGE_POSTGRES_URL"),
			"PostgreSQL connection URL (defaults to COURSEFORGE_POSTGRES_URL)")
		timeout = flag.Duration("timeout", 5*time.Minute, "overall migration timeout")
	)
	flag.Parse()

	log.SetFormatter(&log.JSONFormatter{})

	if *databaseURL == "" {
		log.Fatal("database URL is required: pass -database-url or set COURSEFORGE_POSTGRES_URL")
	}

	cfg := postgres.DefaultConfig()
	cfg.URL = *databaseURL

	db, err := postgres.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	migrations := postgres.BaseMigrations()
	migrations = append(migrations, courses.Migrations()...)
	migrations = append(migrations, rbac.Migrations()...)
	migrations = append(migrations, invites.Migrations()...)
	migrations = append(migrations, comments.Migrations()...)
	migrations = append(migrations, audit.Migrations()...)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := postgres.ApplyMigrations(ctx, db, migrations); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	if err := rbac.SeedPermissions(ctx, db); err != nil {
		log.WithError(err).Fatal("failed to seed permission catalog")
	}

	log.WithField("migrations", len(migrations)).Info("schema is up to date")
}
