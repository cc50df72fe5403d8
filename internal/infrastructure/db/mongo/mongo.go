package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	appName        = "farm-session"
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
)

// Config selects the deployment and the database holding credentials and
// profiles.
type Config struct {
	URI      string
	Database string
}

// Connect dials the deployment and waits for the primary before returning the
// database handle.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetConnectTimeout(connectTimeout).
		SetTimeout(opTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := (Pinger{Client: client}).Ping(pingCtx); err != nil {
		_ = Disconnect(client)
		return nil, nil, fmt.Errorf("mongo primary unreachable: %w", err)
	}
	return client, client.Database(cfg.Database), nil
}

// Disconnect closes client, giving in-flight operations opTimeout to drain.
func Disconnect(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// Pinger reports whether the primary is reachable.
type Pinger struct {
	Client *mongo.Client
}

func (p Pinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx, readpref.Primary())
}
