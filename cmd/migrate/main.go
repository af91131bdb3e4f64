package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"socialhub-backend/pkg/env"
	"socialhub-backend/pkg/logger"
)

// usage: migrate [-path dir] up | down | steps N | version | force V
func main() {
	logger.InitDefault()
	defer logger.Sync()

	_ = godotenv.Load()

	path := flag.String("path", "", "migrations directory (searched upwards from the working directory when empty)")
	flag.Parse()

	dbURL, err := env.Secret("DATABASE_URL", "")
	if err != nil {
		logger.Fatal("Failed to read DATABASE_URL", zap.Error(err))
	}
	if dbURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	dir := *path
	if dir == "" {
		dir = findMigrations()
	}
	if dir == "" {
		logger.Fatal("Migrations directory not found")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		logger.Fatal("Invalid migrations path", zap.Error(err))
	}

	m, err := migrate.New("file://"+absDir, dbURL)
	if err != nil {
		logger.Fatal("Failed to open migrations", zap.Error(err))
	}
	defer m.Close()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		n, convErr := strconv.Atoi(flag.Arg(1))
		if convErr != nil {
			logger.Fatal("steps needs an integer argument", zap.String("arg", flag.Arg(1)))
		}
		err = m.Steps(n)
	case "force":
		v, convErr := strconv.Atoi(flag.Arg(1))
		if convErr != nil {
			logger.Fatal("force needs a version argument", zap.String("arg", flag.Arg(1)))
		}
		err = m.Force(v)
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil && !errors.Is(verErr, migrate.ErrNilVersion) {
			logger.Fatal("Failed to read schema version", zap.Error(verErr))
		}
		logger.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return
	default:
		logger.Fatal("Unknown command", zap.String("command", cmd))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Migration failed", zap.String("command", cmd), zap.Error(err))
	}
	logger.Info("Migration finished", zap.String("command", cmd), zap.String("dir", absDir))
}

func findMigrations() string {
	current, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(current, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return ""
}
