// cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/unclebandit/mailflow/internal/config"
	"github.com/unclebandit/mailflow/internal/db"
	"github.com/unclebandit/mailflow/internal/logger"
)

func main() {
	seed := flag.Bool("seed", false, "run the seed files after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()
	conn, err := db.Open(ctx, db.Options{
		DSN:           cfg.DatabaseURL,
		MaxOpenConns:  2,
		RetryAttempts: cfg.DBConnectRetries,
		RetryInterval: cfg.DBRetryInterval,
	}, zlog)
	if err != nil {
		zlog.Fatal("failed to connect", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn, zlog); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}

	if !*seed {
		return
	}
	if cfg.IsProduction() {
		zlog.Fatal("refusing to seed a production database")
	}

	seedFiles := flag.Args()
	if len(seedFiles) == 0 {
		seedFiles = []string{"seed/campaigns.sql", "seed/automations.sql"}
	}
	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			zlog.Fatal("failed to read seed file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			zlog.Fatal("failed to execute seed file", zap.String("file", file), zap.Error(err))
		}
		fmt.Printf("Seeded: %s\n", file)
	}
	fmt.Println("Database seeding completed successfully!")
}
