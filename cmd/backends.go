package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/pelusa-v/pelusa-relay/internal/chat"
	"github.com/pelusa-v/pelusa-relay/internal/config"
	"github.com/pelusa-v/pelusa-relay/internal/offline"
	"github.com/pelusa-v/pelusa-relay/internal/storage"
)

type offlineBackend interface {
	chat.OfflineStore
	Close() error
}

// backends are the stores selected by config, plus what has to be closed on exit.
type backends struct {
	store   chat.Persistence
	offline offlineBackend
	closers []func() error
}

func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}
	var db *gorm.DB

	switch cfg.Database.Driver {
	case "postgres":
		var err error
		db, err = storage.Connect(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		repo := storage.NewRepository(db, logger)
		if cfg.Database.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				_ = b.Close()
				return nil, err
			}
		}
		b.store = repo
	default:
		// Users are registered on first connect; there is no signup flow to create them.
		b.store = storage.NewMemory(true)
	}

	switch cfg.Offline.Driver {
	case "redis":
		r, err := offline.DialRedis(ctx, offline.RedisOptions{
			Addr:     cfg.Offline.RedisAddr,
			Password: cfg.Offline.RedisPassword,
			DB:       cfg.Offline.RedisDB,
			Prefix:   cfg.Offline.KeyPrefix,
		})
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.offline = r
	case "postgres":
		if db == nil {
			_ = b.Close()
			return nil, errors.New("offline postgres driver needs a postgres database")
		}
		p := offline.NewPostgres(db)
		if cfg.Database.Migrate {
			if err := p.Migrate(ctx); err != nil {
				_ = b.Close()
				return nil, err
			}
		}
		b.offline = p
	default:
		logger.Warn("offline backlog is kept in memory and lost on restart; use the redis or postgres driver in production",
			"offline_driver", cfg.Offline.Driver)
		b.offline = offline.NewMemory()
	}
	b.closers = append([]func() error{b.offline.Close}, b.closers...)

	logger.Info("backends ready", "database", cfg.Database.Driver, "offline", cfg.Offline.Driver)
	return b, nil
}

// Close releases the offline store before the database it may share.
func (b *backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func policyFromConfig(d config.DeliveryConfig) chat.Policy {
	p := chat.Policy{
		Retries:       d.Retries,
		Interval:      d.Interval.Std(),
		BackoffFactor: d.BackoffFactor,
		MaxInterval:   d.MaxInterval.Std(),
		AckKinds:      make(map[chat.Kind]bool, len(d.AckKinds)),
	}
	for _, k := range d.AckKinds {
		p.AckKinds[chat.Kind(k)] = true
	}
	return p
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

const shutdownTimeout = 10 * time.Second
