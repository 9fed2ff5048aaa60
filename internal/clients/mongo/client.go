package mongo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"space-pulse/internal/config"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var (
	// ErrNotInitialized is returned by Shutdown when Init never produced a client.
	ErrNotInitialized = errors.New("mongo client not initialized")
	// ErrShutdown is returned by repeated Shutdown calls.
	ErrShutdown = errors.New("mongo client already shut down")
)

var (
	drv driver = mongoDriver{}

	client  *mongo.Client
	db      *mongo.Database
	initErr error
	mu      sync.RWMutex

	initOnce     sync.Once
	shutdownOnce sync.Once
	txnProbeOnce sync.Once

	isReplicaSet atomic.Bool
)

// Init connects once and caches the outcome; later calls return the same client, database
// and error. A failed connection leaves both nil.
func Init(ctx context.Context, cfg config.Config, log *slog.Logger) (*mongo.Client, *mongo.Database, error) {
	initOnce.Do(func() {
		opts := options.Client().
			ApplyURI(cfg.MongoURI).
			SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
			SetConnectTimeout(10 * time.Second).
			SetAppName("space-pulse")

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		cli, err := drv.Connect(ctx, opts)
		if err != nil {
			log.Error("mongo connect failed", "err", err)
			setState(nil, nil, err)
			return
		}
		if err := drv.Ping(ctx, cli); err != nil {
			log.Error("mongo ping failed", "err", err)
			_ = drv.Disconnect(ctx, cli)
			setState(nil, nil, err)
			return
		}

		setState(cli, cli.Database(cfg.MongoDBName), nil)
		probeTransactions(ctx, cli, log)
		log.Info("successfully connected to mongo", "db", cfg.MongoDBName, "replica_set", IsReplicaSet())
	})

	mu.RLock()
	defer mu.RUnlock()
	return client, db, initErr
}

func setState(c *mongo.Client, d *mongo.Database, err error) {
	mu.Lock()
	defer mu.Unlock()
	client, db, initErr = c, d, err
}

func probeTransactions(ctx context.Context, cli *mongo.Client, log *slog.Logger) {
	txnProbeOnce.Do(func() {
		rs, err := drv.ReplicaSet(ctx, cli)
		if err != nil {
			log.Warn("topology probe failed, transactions disabled", "err", err)
			return
		}
		isReplicaSet.Store(rs)
	})
}

// IsReplicaSet reports whether the current deployment supports transactions.
// Callers MUST treat the result as a hint (cached & eventually consistent).
func IsReplicaSet() bool { return isReplicaSet.Load() }

// Client returns the singleton MongoDB client instance.
func Client() *mongo.Client {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// DB returns the singleton MongoDB database instance.
func DB() *mongo.Database {
	mu.RLock()
	defer mu.RUnlock()
	return db
}

// Shutdown disconnects the client. Only the first call does any work.
func Shutdown(ctx context.Context) error {
	err := ErrShutdown
	shutdownOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		if client == nil {
			err = ErrNotInitialized
			return
		}

		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err = drv.Disconnect(ctx, client)
		client = nil
		db = nil
		isReplicaSet.Store(false)
	})
	return err
}
