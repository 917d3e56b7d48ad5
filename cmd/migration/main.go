package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New(logging.Options{Level: logging.LevelInfo, Format: logging.FormatConsole, Service: "rank-tracker-migration"})
	defer func() {
		_ = logger.Sync()
	}()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		fatal(logger, "DB_URL is required")
	}
	dbURL = normalizeDBURL(dbURL, envBool("DB_DISABLE_PREPARED_BINARY_RESULT"))

	cmd := strings.ToLower(strings.TrimSpace(os.Args[1]))
	if cmd == "seed" {
		runSeed(logger, dbURL)
		return
	}

	migrationsDir, err := resolveMigrationsDir()
	if err != nil {
		fatal(logger, "resolve migrations dir", "error", err)
	}

	sourceURL := "file://" + filepath.ToSlash(migrationsDir)
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		fatal(logger, "create migrator", "error", err)
	}
	defer closeMigrator(logger, m)

	switch cmd {
	case "up":
		handleMigrationErr(logger, m.Up())
		logger.Info("migrations applied", "source", sourceURL)
	case "down":
		steps, parseErr := parseSteps(os.Args[2:])
		if parseErr != nil {
			fatal(logger, "parse down steps", "error", parseErr)
		}
		handleMigrationErr(logger, m.Steps(-steps))
		logger.Info("rolled back migrations", "steps", steps)
	case "version":
		version, dirty, versionErr := m.Version()
		if errors.Is(versionErr, migrate.ErrNilVersion) {
			fmt.Println("version: none")
			fmt.Println("dirty: false")
			return
		}
		if versionErr != nil {
			fatal(logger, "read version", "error", versionErr)
		}
		fmt.Printf("version: %d\n", version)
		fmt.Printf("dirty: %t\n", dirty)
	case "force":
		if len(os.Args) < 3 {
			fatal(logger, "force requires a version argument")
		}
		version, parseErr := parseVersion(os.Args[2])
		if parseErr != nil {
			fatal(logger, "parse force version", "error", parseErr)
		}
		if err := m.Force(version); err != nil {
			fatal(logger, "force version", "version", version, "error", err)
		}
		logger.Info("forced version", "version", version)
	case "goto", "migrate":
		if len(os.Args) < 3 {
			fatal(logger, "goto requires a target version argument")
		}
		target, parseErr := parseTarget(os.Args[2])
		if parseErr != nil {
			fatal(logger, "parse target version", "error", parseErr)
		}
		handleMigrationErr(logger, m.Migrate(target))
		logger.Info("migrated to version", "version", target)
	default:
		printUsage()
		os.Exit(2)
	}
}

// runSeed loads TRACKED_PLAYERS into an empty tracked_accounts table.
func runSeed(logger *logging.Logger, dbURL string) {
	identities, err := memory.ParseTrackedPlayers(os.Getenv("TRACKED_PLAYERS"))
	if err != nil {
		fatal(logger, "parse TRACKED_PLAYERS", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dbURL)
	if err != nil {
		fatal(logger, "connect database", "error", err)
	}
	defer db.Close()

	inserted, err := postgres.BootstrapTrackedAccounts(ctx, db, identities)
	if err != nil {
		fatal(logger, "seed tracked accounts", "error", err)
	}
	logger.Info("tracked accounts seeded", "inserted", inserted, "configured", len(identities))
}

func handleMigrationErr(logger *logging.Logger, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migration changes")
		return
	}
	fatal(logger, "migration failed", "error", err)
}

func closeMigrator(logger *logging.Logger, m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("close migration source", "error", srcErr)
	}
	if dbErr != nil {
		logger.Warn("close migration db", "error", dbErr)
	}
}

func fatal(logger *logging.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	_ = logger.Sync()
	os.Exit(1)
}

func printUsage() {
	name := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "usage: %s <up|down|version|force|goto|seed> [args]\n", name)
	fmt.Fprintln(os.Stderr, "examples:")
	fmt.Fprintf(os.Stderr, "  %s up\n", name)
	fmt.Fprintf(os.Stderr, "  %s down 1\n", name)
	fmt.Fprintf(os.Stderr, "  %s version\n", name)
	fmt.Fprintf(os.Stderr, "  %s force 3\n", name)
	fmt.Fprintf(os.Stderr, "  %s goto 2\n", name)
	fmt.Fprintf(os.Stderr, "  TRACKED_PLAYERS='lol:puuid:Name:na1' %s seed\n", name)
}
