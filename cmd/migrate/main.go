package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/Lavavarshney/Library-Management-System/pkg/config"
	"github.com/Lavavarshney/Library-Management-System/pkg/db"
	"github.com/Lavavarshney/Library-Management-System/pkg/logger"
	"github.com/Lavavarshney/Library-Management-System/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: the set built into the binary)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", opts.cmd)

	if err := run(ctx, opts, logg); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logg *logger.Logger) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer client.Close()

	if cfg.DB.IsSQLite() {
		if opts.cmd != "up" {
			return fmt.Errorf("-cmd=%s is not supported for sqlite", opts.cmd)
		}
		return migrate.AutoMigrate(ctx, logg, client)
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}
	source, err := migrate.Source(opts.dir)
	if err != nil {
		return err
	}
	m, err := migrate.NewMigrator(sqlDB, source)
	if err != nil {
		return err
	}

	switch opts.cmd {
	case "up":
		applied, err := m.Up(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		return m.Down(ctx)
	case "status":
		lines, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, line := range lines {
			state := "pending"
			if line.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%s\t%s\n", line.Version, state, line.Path)
		}
	case "version":
		if opts.version == "" {
			return errors.New("-version is required for -cmd=version")
		}
		return m.MigrateTo(ctx, opts.version)
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
	return nil
}
