package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
)

type dbCommand func(ctx context.Context, sqlDB *sql.DB) error

func main() {
	cmd := flag.String("cmd", "up", "up|down|redo|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory on disk (default: migrations embedded in the binary)")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()

	// create and validate work on files only and must run without a database or config.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		exitOn(err, "create migration")
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(migrate.ValidateDir(*dir), "validate migrations")
		fmt.Println("migration validation passed")
		return
	}

	commands := map[string]dbCommand{
		"up":     gooseCommand(*dir, "up"),
		"down":   gooseCommand(*dir, "down"),
		"redo":   gooseCommand(*dir, "redo"),
		"status": gooseCommand(*dir, "status"),
		"version": func(ctx context.Context, sqlDB *sql.DB) error {
			if *version == "" {
				return fmt.Errorf("missing -version")
			}
			return migrate.MigrateToVersion(ctx, sqlDB, *dir, *version)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		exitOn(fmt.Errorf("unknown -cmd %q (want one of %s, create, validate)", *cmd, commandNames(commands)), "parse flags")
	}

	cfg, err := config.Load()
	exitOn(err, "load config")

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	source := *dir
	if source == "" {
		source = "embedded"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"source": source,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to unwrap sql database", err)
		os.Exit(1)
	}

	if err := run(ctx, sqlDB); err != nil {
		logg.Error(ctx, "migration command failed", err)
		dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration command complete")
}

func gooseCommand(dir, command string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB) error {
		return migrate.Run(ctx, sqlDB, dir, command)
	}
}

func commandNames(commands map[string]dbCommand) string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func exitOn(err error, step string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
