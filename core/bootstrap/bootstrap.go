package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	coredatabase "github.com/m3rciful/funnelbot/core/database"
	"github.com/m3rciful/funnelbot/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB is nil unless storage.backend is postgres; Redis is nil unless
// segments.backend is redis.
type Result struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

// Run initializes the logger and, depending on the configured backends,
// connects to the database (applying migrations) and to redis.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}

	if opts.Config.Storage.Backend == coreconfig.StoragePostgres {
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		res.DB = db
	}

	if opts.Config.Segments.Backend == coreconfig.SegmentsRedis {
		client := redis.NewClient(&redis.Options{
			Addr: opts.Config.Segments.RedisAddr,
			DB:   opts.Config.Segments.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			if res.DB != nil {
				_ = res.DB.Close()
			}
			_ = client.Close()
			return nil, fmt.Errorf("bootstrap: redis ping failed: %w", err)
		}
		res.Redis = client
	}

	return res, nil
}
