package main

import (
	"context"
	"fmt"

	"github.com/Fuchsoria/formula-bandit/internal/app"
	simpleproducer "github.com/Fuchsoria/formula-bandit/internal/amqp/producer"
	"github.com/Fuchsoria/formula-bandit/internal/bandit"
	"github.com/Fuchsoria/formula-bandit/internal/logger"
	"github.com/Fuchsoria/formula-bandit/internal/storage"
	sqlstorage "github.com/Fuchsoria/formula-bandit/internal/storage/sql"
	"github.com/streadway/amqp"
)

type deps struct {
	logg    *logger.Logger
	app     *app.App
	conn    *amqp.Connection
	closers []func() error
}

// initDeps wires the application. Postgres and RabbitMQ are optional: when
// either is configured but unreachable the error is logged and the process
// continues without it.
func initDeps(ctx context.Context, config Config) *deps {
	d := &deps{logg: logger.New(config.Logger.Level, config.Logger.File)}

	var (
		repo     storage.Repository
		auditors storage.MultiAuditor
	)

	if config.DB.Enabled {
		db, err := initStorage(ctx, config)
		if err != nil {
			d.logg.Error("running without persistence", "error", err)
		} else {
			repo = db
			auditors = append(auditors, db)
			d.closers = append(d.closers, db.Close)
		}
	}

	if config.AMQP.Enabled {
		conn, err := amqp.Dial(config.AMQP.URI)
		if err != nil {
			d.logg.Error("cannot connect to amqp", "error", err)
		} else {
			d.conn = conn
			d.closers = append(d.closers, conn.Close)

			producer := simpleproducer.New(config.AMQP.AuditQueue, conn)
			if err := producer.Connect(); err != nil {
				d.logg.Error("audit queue unavailable", "error", err)
			} else {
				auditors = append(auditors, producer)
				d.closers = append(d.closers, producer.Close)
			}
		}
	}

	store := storage.NewStore(d.logg, repo, defaultModels(config))

	opts := []bandit.Option{}
	if config.Bandit.Seed != 0 {
		opts = append(opts, bandit.WithSeed(config.Bandit.Seed))
	}

	if len(auditors) > 0 {
		opts = append(opts, bandit.WithAuditor(auditors))
	}

	d.app = app.New(d.logg, store, bandit.New(d.logg, store, opts...))
	d.app.Initialize(ctx)

	return d
}

func initStorage(ctx context.Context, config Config) (*sqlstorage.Storage, error) {
	db, err := sqlstorage.New(ctx, config.DB.ConnectionString, config.DB.Timeout)
	if err != nil {
		return nil, fmt.Errorf("can't create new storage instance, %w", err)
	}

	if err := db.Connect(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("can't connect to storage, %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("cannot create bandit tables, %w", err)
	}

	return db, nil
}

func defaultModels(config Config) []string {
	if len(config.Bandit.DefaultModels) == 0 {
		return nil
	}

	return config.Bandit.DefaultModels
}

// Close releases connections in reverse order of creation.
func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logg.Warn("close failed", "error", err)
		}
	}

	_ = d.logg.Sync()
}
