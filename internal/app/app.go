// Package app assembles the sync pipeline from configuration. The HTTP
// server and the mpsync CLI share it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/EmpoweredVote/mp-sync/internal/config"
	"github.com/EmpoweredVote/mp-sync/internal/db"
	"github.com/EmpoweredVote/mp-sync/internal/members"
	"github.com/EmpoweredVote/mp-sync/internal/members/events"
	"github.com/EmpoweredVote/mp-sync/internal/members/imagestore"
	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
	"github.com/EmpoweredVote/mp-sync/internal/seeds"
)

// Pipeline holds every wired component.
type Pipeline struct {
	Config     config.Config
	DB         *gorm.DB
	Store      *members.GormStore
	Client     *parl.Client
	Loader     *members.Loader
	Importer   *members.Importer
	Reconciler *members.Reconciler
	Events     members.Publisher

	log *zap.Logger
}

// Term is the configured current parliament and session.
func (p *Pipeline) Term() parl.Term {
	return parl.Term{Parliament: p.Config.Parl.Parliament, Session: p.Config.Parl.Session}
}

// ParlOptions maps configuration onto client options.
func ParlOptions(cfg config.ParlConfig) parl.Options {
	return parl.Options{
		Host:              cfg.Host,
		Path:              cfg.Path,
		QueryString:       cfg.QueryString,
		DirectoryPath:     cfg.DirectoryPath,
		OutputDir:         cfg.OutputDir,
		FilePrefix:        cfg.FilePrefix,
		Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
	}
}

// Build connects to the database, prepares the schema and wires the
// pipeline.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*Pipeline, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	conn, err := db.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Ping(ctx, conn); err != nil {
		return nil, fmt.Errorf("%w: %v", members.ErrStoreUnavailable, err)
	}
	if err := members.Init(conn); err != nil {
		return nil, err
	}
	if err := seeds.SeedAll(conn, log); err != nil {
		return nil, err
	}

	client, err := parl.NewClient(ParlOptions(cfg.Parl), log)
	if err != nil {
		return nil, err
	}

	var adopter members.ImageAdopter
	if cfg.Images.Dir != "" {
		images, err := imagestore.New(imagestore.Options{Dir: cfg.Images.Dir}, log)
		if err != nil {
			return nil, err
		}
		adopter = images
	}

	pub := events.New(events.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)

	store := members.NewGormStore(conn)
	loader := members.NewLoader(store, log, pub)

	return &Pipeline{
		Config:     cfg,
		DB:         conn,
		Store:      store,
		Client:     client,
		Loader:     loader,
		Importer:   members.NewImporter(client, loader, store, cfg.Import.Workers, log),
		Reconciler: members.NewReconciler(store, members.Merger{ImageBaseURL: cfg.Images.BaseURL}, adopter, pub, log),
		Events:     pub,
		log:        log,
	}, nil
}

// Close flushes the event producer and closes the database pool.
func (p *Pipeline) Close() {
	if c, ok := p.Events.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			p.log.Warn("close event producer", zap.Error(err))
		}
	}
	if sqlDB, err := p.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
