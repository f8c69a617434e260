package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// connectTimeout bounds the initial dial plus the verification ping.
const connectTimeout = 10 * time.Second

// ClientConfig carries the MongoDB connection settings for the
// transcript archive.
type ClientConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	MinPoolSize uint64
}

// ValidateClientConfig checks the settings the archive cannot run
// without.
func ValidateClientConfig(cfg ClientConfig) error {
	if cfg.URI == "" {
		return fmt.Errorf("archive URI is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("archive database name is required")
	}
	if cfg.MinPoolSize > cfg.MaxPoolSize {
		return fmt.Errorf("archive min pool size %d exceeds max pool size %d", cfg.MinPoolSize, cfg.MaxPoolSize)
	}
	return nil
}

// Client holds the connection the transcript repository writes through.
type Client struct {
	*mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// NewClient connects to MongoDB and verifies the connection with a
// ping. The archive is a background sink, so the pool stays small and
// idle connections are recycled.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if err := ValidateClientConfig(cfg); err != nil {
		return nil, err
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(30 * time.Minute).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(connectTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Transcript archive connected",
		zap.String("database", cfg.Database),
		zap.Uint64("max_pool_size", cfg.MaxPoolSize))

	return &Client{
		Client:   client,
		Database: client.Database(cfg.Database),
		logger:   logger,
	}, nil
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	if err := c.Client.Disconnect(ctx); err != nil {
		c.logger.Error("Failed to disconnect from MongoDB", zap.Error(err))
		return err
	}
	c.logger.Info("Transcript archive disconnected")
	return nil
}
