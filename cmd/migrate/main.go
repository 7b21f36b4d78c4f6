package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dukalink-backend/pkg/config"
	"github.com/angelmondragon/dukalink-backend/pkg/db"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
	"github.com/angelmondragon/dukalink-backend/pkg/migrate"
)

type dbCommand func(ctx context.Context, sqlDB *sql.DB, dir string) error

func gooseCommand(name string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB, dir string) error {
		return migrate.Run(ctx, sqlDB, dir, name)
	}
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name, for -cmd=create")
	version := flag.String("version", "", "target YYYYMMDDHHMMSS version, for -cmd=version")
	flag.Parse()

	// create and validate only touch the filesystem.
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			exitf("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migrations valid")
		return
	}

	commands := map[string]dbCommand{
		"up":     gooseCommand("up"),
		"down":   gooseCommand("down"),
		"status": gooseCommand("status"),
		"version": func(ctx context.Context, sqlDB *sql.DB, dir string) error {
			if *version == "" {
				return fmt.Errorf("missing -version")
			}
			return migrate.MigrateToVersion(ctx, sqlDB, dir, *version)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		exitf("unknown -cmd value: %s", *cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to open sql handle", err)
		os.Exit(1)
	}

	if err := run(ctx, sqlDB, *dir); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration complete")
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
