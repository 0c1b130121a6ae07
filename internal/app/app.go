// Package app connects the stores and assembles the services shared by every command.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/ledger"
	"github.com/Ramsey-B/clover/pkg/consolidation"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/interests"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/viewstore"
)

const (
	DependencyLedger    = "ledger"
	DependencyGraph     = "graph"
	DependencyViewStore = "viewstore"
	DependencyInterests = "interests"
	DependencyEvents    = "events"
	DependencyServices  = "services"
)

// App holds every connected store and the services built on top of them. Fields for optional
// stores stay nil when the store is disabled.
type App struct {
	Config config.Config
	Logger ectologger.Logger

	DB          *sqlx.DB
	Ledger      *ledger.Repository
	GraphClient *graph.Client
	Friends     *graph.FriendService
	Redis       *viewstore.Client
	View        *viewstore.Store
	Locker      *viewstore.Locker
	Mongo       *mongo.Client
	Interests   *interests.Store
	Producer    *kafka.Producer

	Engine      *consolidation.Engine
	Coordinator *consolidation.Coordinator
	Ingest      *ingest.Service

	startup *startup.Startup
}

// Options selects what Start connects. Migrate applies ledger migrations once connected.
type Options struct {
	Migrate bool
}

func New(cfg config.Config, logger ectologger.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
}

// Start connects every configured store in dependency order, then assembles the services.
func (a *App) Start(ctx context.Context, opts Options) error {
	a.startup.AddDependency(&startup.Dependency{
		Name: DependencyLedger,
		StartFn: func(ctx context.Context) error {
			return a.connectLedger(ctx, opts.Migrate)
		},
		StopFn: func(context.Context) error {
			return a.DB.Close()
		},
	})

	a.startup.AddDependency(&startup.Dependency{
		Name:    DependencyGraph,
		StartFn: a.connectGraph,
		StopFn: func(ctx context.Context) error {
			return a.GraphClient.Close(ctx)
		},
	})

	a.startup.AddDependency(&startup.Dependency{
		Name:    DependencyViewStore,
		StartFn: a.connectViewStore,
		StopFn: func(context.Context) error {
			return a.Redis.Close()
		},
	})

	required := []string{DependencyLedger, DependencyGraph, DependencyViewStore}

	if a.Config.InterestsEnabled() {
		a.startup.AddDependency(&startup.Dependency{
			Name:    DependencyInterests,
			StartFn: a.connectInterests,
			StopFn: func(ctx context.Context) error {
				return a.Mongo.Disconnect(ctx)
			},
		})
		required = append(required, DependencyInterests)
	}

	if a.Config.KafkaProducerEnabled {
		a.startup.AddDependency(&startup.Dependency{
			Name: DependencyEvents,
			StartFn: func(context.Context) error {
				a.Producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      a.Config.KafkaBrokers,
					Topic:        a.Config.KafkaEventsTopic,
					BatchSize:    a.Config.KafkaBatchSize,
					BatchTimeout: time.Duration(a.Config.KafkaBatchTimeoutMS) * time.Millisecond,
					RequiredAcks: a.Config.KafkaRequiredAcks,
					Compression:  a.Config.KafkaCompression,
				}, a.Logger)
				return nil
			},
			StopFn: func(context.Context) error {
				return a.Producer.Close()
			},
		})
		required = append(required, DependencyEvents)
	}

	a.startup.AddDependency(&startup.Dependency{
		Name:     DependencyServices,
		Requires: required,
		StartFn: func(context.Context) error {
			a.buildServices()
			return nil
		},
	})

	return a.startup.Start(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

func (a *App) connectLedger(ctx context.Context, migrate bool) error {
	db, err := database.Connect(ctx, a.Config.DatabaseDSN(), database.PoolConfig{
		MaxOpenConns:    a.Config.DatabaseMaxOpenConns,
		MaxIdleConns:    a.Config.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.Config.DatabaseConnMaxLifetime,
	})
	if err != nil {
		return err
	}

	if migrate {
		if err := a.newMigrationService().MigratePostgres(db.DB, a.Config.DatabaseName); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to migrate ledger: %w", err)
		}
	}

	a.DB = db
	a.Ledger = ledger.NewRepository(database.NewDatabaseInstance(db, a.Logger), a.Logger)
	return nil
}

func (a *App) newMigrationService() *database.MigrationService {
	return database.NewMigrationService(a.Logger, &database.MigrationConfig{
		MigrationFolderPath: a.Config.DatabaseMigrationFolderPath,
		Version:             a.Config.DatabaseMigrationVersion,
		Force:               a.Config.DatabaseMigrationForce,
		AutoRollback:        a.Config.DatabaseMigrationAutoRollback,
	})
}

func (a *App) connectGraph(ctx context.Context) error {
	client, err := graph.NewClient(graph.Config{
		Host:     a.Config.GraphDBHost,
		Port:     a.Config.GraphDBPort,
		Username: a.Config.GraphDBUser,
		Password: a.Config.GraphDBPassword,
		Database: a.Config.GraphDBName,
	}, a.Logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("failed to reach graph database: %w", err)
	}

	a.GraphClient = client
	a.Friends = graph.NewFriendService(client, a.Logger)
	return nil
}

func (a *App) connectViewStore(ctx context.Context) error {
	client, err := viewstore.NewClient(ctx, viewstore.Config{
		Host:     a.Config.RedisHost,
		Port:     a.Config.RedisPort,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}, a.Logger)
	if err != nil {
		return err
	}

	a.Redis = client
	a.View = viewstore.NewStore(client, a.Config.RedisKeyPrefix, a.Logger)
	a.Locker = viewstore.NewLocker(client, a.Config.RedisLockPrefix)
	return nil
}

func (a *App) connectInterests(ctx context.Context) error {
	client, err := interests.Connect(ctx, a.Config.MongoURI)
	if err != nil {
		return err
	}

	store := interests.NewStore(interests.Collection(client, a.Config.MongoDatabase, a.Config.MongoInterestsCollection), a.Logger)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	a.Mongo = client
	a.Interests = store
	return nil
}

// buildServices wires the optional stores through interface fields only when they exist, so a
// disabled store is a nil interface rather than a typed nil pointer.
func (a *App) buildServices() {
	var publisher consolidation.EventPublisher
	var events ingest.EventPublisher
	if a.Producer != nil {
		publisher = a.Producer
		events = a.Producer
	}

	var interestStore ingest.InterestStore
	if a.Interests != nil {
		interestStore = a.Interests
	}

	a.Engine = consolidation.NewEngine(a.Ledger, a.Friends, a.View, a.Config.RebuildWorkers, a.Logger)
	a.Coordinator = consolidation.NewCoordinator(a.Engine, a.Locker, publisher, a.Config.RebuildLockTTL, a.Logger)
	a.Ingest = ingest.NewService(ingest.Deps{
		Ledger:    a.Ledger,
		Graph:     a.Friends,
		Interests: interestStore,
		View:      a.View,
		Rebuilder: a.Coordinator,
		Events:    events,
	}, ingest.Options{
		RebuildOnPurchase: a.Config.RebuildOnPurchase,
		RebuildRetryDelay: a.Config.RebuildRetryDelay,
		RebuildAttempts:   a.Config.RebuildRetryAttempts,
	}, a.Logger)
}

// Migrate connects to the ledger only and applies pending migrations.
func (a *App) Migrate(ctx context.Context) error {
	db, err := database.Connect(ctx, a.Config.DatabaseDSN(), database.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	return a.newMigrationService().MigratePostgres(db.DB, a.Config.DatabaseName)
}
