package app

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/riskibarqy/rank-tracker/internal/config"
	"github.com/riskibarqy/rank-tracker/internal/domain/ingestion"
	"github.com/riskibarqy/rank-tracker/internal/domain/jobscheduler"
	"github.com/riskibarqy/rank-tracker/internal/domain/player"
	"github.com/riskibarqy/rank-tracker/internal/domain/snapshot"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/rank-tracker/internal/infrastructure/repository/redisstore"
	"github.com/riskibarqy/rank-tracker/internal/platform/id"
	"github.com/riskibarqy/rank-tracker/internal/platform/logging"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/otel/attribute"
)

const storePingTimeout = 5 * time.Second

type stores struct {
	players   player.Repository
	snapshots snapshot.Repository
	audit     ingestion.Repository
	dispatch  jobscheduler.Repository
	closers   []func() error
}

func (s *stores) close() error {
	var errs error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = crerr.CombineErrors(errs, s.closers[i]())
	}
	return errs
}

func buildStores(ctx context.Context, cfg config.Config, ids id.Generator, logger *logging.Logger) (*stores, error) {
	tracked, err := memory.ParseTrackedPlayers(cfg.TrackedPlayers)
	if err != nil {
		return nil, crerr.Wrap(err, "parse TRACKED_PLAYERS")
	}

	switch cfg.SnapshotStore {
	case config.StorePostgres:
		return buildPostgresStores(ctx, cfg, ids, tracked, logger)
	case config.StoreRedis:
		return buildRedisStores(ctx, cfg, ids, tracked, logger)
	default:
		logger.Warn("using in-memory snapshot store, history is lost on restart", "tracked_players", len(tracked))
		return &stores{
			players:   memory.NewPlayerRepository(tracked),
			snapshots: memory.NewSnapshotRepository(ids),
			audit:     memory.NewIngestionRepository(0),
			dispatch:  memory.NewJobDispatchRepository(),
		}, nil
	}
}

func buildPostgresStores(ctx context.Context, cfg config.Config, ids id.Generator, tracked []player.Identity, logger *logging.Logger) (*stores, error) {
	db, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if len(tracked) > 0 {
		seeded, err := postgres.BootstrapTrackedAccounts(ctx, db, tracked)
		if err != nil {
			_ = db.Close()
			return nil, crerr.Wrap(err, "bootstrap tracked accounts")
		}
		if seeded > 0 {
			logger.Info("tracked accounts bootstrapped", "count", seeded)
		}
	}

	logger.Info("postgres snapshot store ready", "db_name", dbNameFromURL(cfg.DBURL))
	return &stores{
		players:   postgres.NewTrackedAccountRepository(db),
		snapshots: postgres.NewSnapshotRepository(db, ids),
		audit:     postgres.NewIngestionResultRepository(db),
		dispatch:  postgres.NewJobDispatchRepository(db),
		closers:   []func() error{db.Close},
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	db, err := otelsqlx.Open("postgres", normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary),
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
		otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, crerr.Wrap(err, "open postgres")
	}
	db.SetMaxOpenConns(max(cfg.WorkerPoolSize*2, 8))
	db.SetMaxIdleConns(max(cfg.WorkerPoolSize, 4))
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, crerr.Wrap(err, "ping postgres")
	}
	return db, nil
}

func buildRedisStores(ctx context.Context, cfg config.Config, ids id.Generator, tracked []player.Identity, logger *logging.Logger) (*stores, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, crerr.Wrapf(err, "ping redis addr=%s", cfg.RedisAddr)
	}

	logger.Info("redis snapshot store ready", "addr", cfg.RedisAddr, "key_prefix", cfg.RedisKeyPrefix)
	return &stores{
		players:   memory.NewPlayerRepository(tracked),
		snapshots: redisstore.NewSnapshotRepository(client, cfg.RedisKeyPrefix, ids),
		audit:     memory.NewIngestionRepository(0),
		dispatch:  memory.NewJobDispatchRepository(),
		closers:   []func() error{client.Close},
	}, nil
}
