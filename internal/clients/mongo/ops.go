package mongo

import (
	"context"
	"errors"
	"time"

	"space-pulse/internal/logger"
	"space-pulse/internal/services/spaces"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// OpTimeout is the default timeout for MongoDB operations
const OpTimeout = 5 * time.Second

// WithRepoTimeout bounds ctx by d unless it already expires sooner or is done. The returned
// cancel is always safe to defer.
func WithRepoTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx.Err() != nil {
		return ctx, func() {}
	}
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) <= d {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func repoCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return WithRepoTimeout(parent, OpTimeout)
}

// notFoundAs maps the driver ErrNoDocuments to a domain error.
func notFoundAs(err, domain error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain
	}
	return err
}

// spaceOID parses a space id; malformed ids cannot name an existing space.
func spaceOID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, spaces.ErrSpaceNotFound
	}
	return oid, nil
}

func noteOID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, spaces.ErrNoteNotFound
	}
	return oid, nil
}

// inTxn runs fn in a transaction on replica sets and directly otherwise. Standalone servers
// get no atomicity across collections; each write is still atomic on its own document.
func inTxn(ctx context.Context, cli *mongo.Client, fn func(ctx context.Context) error) error {
	if cli == nil || !IsReplicaSet() {
		return fn(ctx)
	}

	sess, err := cli.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func closeCursor(ctx context.Context, cur *mongo.Cursor) {
	if err := cur.Close(ctx); err != nil {
		if log := logger.L(); log != nil {
			log.Error("failed to close cursor", "error", err)
		}
	}
}
