// Package bot assembles the funnel bot application: storage and segment
// backends, the follow-up scheduler, the state machine, the Telegram
// update wiring and the postback listener.
package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/funnelbot/core/bootstrap"
	coreconfig "github.com/m3rciful/funnelbot/core/config"
	coredatabase "github.com/m3rciful/funnelbot/core/database"
	coretelegram "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/router"
	"github.com/m3rciful/funnelbot/internal/affiliate"
	"github.com/m3rciful/funnelbot/internal/followup"
	"github.com/m3rciful/funnelbot/internal/funnel"
	"github.com/m3rciful/funnelbot/internal/postback"
	"github.com/m3rciful/funnelbot/internal/segment"
	"github.com/m3rciful/funnelbot/internal/store"
)

// ConfigFile carries the loaded core configuration into the runner.
type ConfigFile struct {
	cfg *coreconfig.Config
}

// LoadConfig reads the YAML config with env overrides.
func LoadConfig(path string) (*ConfigFile, error) {
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return &ConfigFile{cfg: cfg}, nil
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *ConfigFile) CoreConfig() *coreconfig.Config { return c.cfg }

// App is the assembled application.
type App struct {
	cfg *coreconfig.Config

	db    *sqlx.DB
	redis *redis.Client

	followups *followup.Registry
	segments  segment.Index
	gateway   *Gateway
	machine   *funnel.Machine
	listener  *postback.Server
}

// NewApp bootstraps infrastructure and builds the funnel components.
func NewApp(cfg *coreconfig.Config) (*App, error) {
	var dbCfg coredatabase.Config
	if cfg.Storage.Backend == coreconfig.StoragePostgres {
		if err := envconfig.Process("", &dbCfg); err != nil {
			return nil, fmt.Errorf("bot: database env: %w", err)
		}
		if dbCfg.SSLMode == "" {
			dbCfg.SSLMode = "disable"
		}
		if dbCfg.MaxConnections <= 0 {
			dbCfg.MaxConnections = 4
		}
	}

	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg, Database: dbCfg})
	if err != nil {
		return nil, err
	}

	var st store.Store
	if boot.DB != nil {
		st = store.NewPostgres(boot.DB)
	} else {
		st = store.NewMemory()
	}

	var idx segment.Index
	if boot.Redis != nil {
		idx = segment.NewRedis(boot.Redis)
	} else {
		idx = segment.NewMemory()
	}

	followups, err := followup.NewRegistry()
	if err != nil {
		return nil, err
	}

	links, err := affiliate.New(cfg.Affiliate.RegisterURL, cfg.Affiliate.DepositURL)
	if err != nil {
		return nil, err
	}

	gateway := NewGateway()
	machine := funnel.New(st, idx, followups, gateway, links, funnel.Config{
		LanguageTimeout:   cfg.Funnel.LanguageTimeout,
		ReminderShort:     cfg.Funnel.ReminderShort,
		ReminderLong:      cfg.Funnel.ReminderLong,
		ReactivationDelay: cfg.Funnel.ReactivationDelay,
		FallbackLanguage:  cfg.Funnel.FallbackLanguage,
		NicknameMaxLen:    cfg.Funnel.NicknameMaxLen,
	})

	listener := postback.NewServer(machine, idx,
		cfg.Postback.Secret, cfg.Postback.Listen, strconv.Itoa(cfg.Postback.Port))

	return &App{
		cfg:       cfg,
		db:        boot.DB,
		redis:     boot.Redis,
		followups: followups,
		segments:  idx,
		gateway:   gateway,
		machine:   machine,
		listener:  listener,
	}, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := a.buildRegistry()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(_ context.Context, rt coretelegram.Runtime) error {
			a.gateway.Attach(rt.Bot, rt.Dispatcher)
			return nil
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			a.close()
			return nil
		},
	}, nil
}

// RunPostback implements cmd.PostbackApp.
func (a *App) RunPostback(ctx context.Context) error {
	return a.listener.Run(ctx)
}

func (a *App) close() {
	_ = a.followups.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
