package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/pageproof-go/pkg/config"
	"github.com/Layr-Labs/pageproof-go/pkg/logger"
	"github.com/Layr-Labs/pageproof-go/pkg/merkle"
	"github.com/Layr-Labs/pageproof-go/pkg/node"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence"
	badgerPersistence "github.com/Layr-Labs/pageproof-go/pkg/persistence/badger"
	"github.com/Layr-Labs/pageproof-go/pkg/persistence/memory"
	redisPersistence "github.com/Layr-Labs/pageproof-go/pkg/persistence/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app := &cli.App{
		Name:  "pageproof-server",
		Usage: "Page inclusion proof server",
		Description: `Anchors uploaded documents by a merkle root over their pages and serves
inclusion proofs for individual pages.

Each page of an uploaded PDF or form-feed separated text file is hashed into a
leaf. Only the root and the ordered leaf hashes are stored; trees are rebuilt
on demand to answer proof requests.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPageproofPort},
			},
			&cli.StringFlag{
				Name:    "hash-algorithm",
				Aliases: []string{"hash"},
				Value:   merkle.DefaultHashAlgorithm.String(),
				Usage:   fmt.Sprintf("Hash algorithm for new documents: %s", merkle.SupportedHashAlgorithmsString()),
				EnvVars: []string{config.EnvPageproofHashAlgorithm},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Value:   config.PersistenceTypeBadger.String(),
				Usage:   fmt.Sprintf("Persistence backend: %s", config.GetSupportedPersistenceTypesString()),
				EnvVars: []string{config.EnvPageproofPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Value:   config.DefaultDataPath,
				Usage:   "Directory for the badger backend",
				EnvVars: []string{config.EnvPageproofDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port) for the redis backend",
				EnvVars: []string{config.EnvPageproofRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvPageproofRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvPageproofRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every Redis key",
				EnvVars: []string{config.EnvPageproofRedisKeyPrefix},
			},
			&cli.Int64Flag{
				Name:    "max-upload-bytes",
				Value:   config.DefaultMaxUploadBytes,
				Usage:   "Largest accepted upload in bytes",
				EnvVars: []string{config.EnvPageproofMaxUploadBytes},
			},
			&cli.Float64Flag{
				Name:    "upload-rate",
				Value:   config.DefaultUploadRate,
				Usage:   "Sustained uploads per second across all clients (0 disables limiting)",
				EnvVars: []string{config.EnvPageproofUploadRate},
			},
			&cli.IntFlag{
				Name:    "upload-burst",
				Value:   config.DefaultUploadBurst,
				Usage:   "Uploads allowed in a burst above the sustained rate",
				EnvVars: []string{config.EnvPageproofUploadBurst},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvPageproofVerbose},
			},
		},
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseServerConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := newPersistence(cfg, l)
	if err != nil {
		return fmt.Errorf("failed to create persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", err)
		}
	}()

	n, err := node.NewNode(node.Config{
		Port:           cfg.Port,
		HashAlgorithm:  cfg.HashAlgorithm,
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadRate:     cfg.UploadRate,
		UploadBurst:    cfg.UploadBurst,
		Logger:         l,
	}, store)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if cfg.Debug {
		l.Sugar().Infow("Pageproof Server Configuration",
			"port", cfg.Port,
			"hash_algorithm", cfg.HashAlgorithm,
			"persistence_type", cfg.PersistenceType,
			"data_path", cfg.DataPath,
			"max_upload_bytes", cfg.MaxUploadBytes,
			"upload_rate", cfg.UploadRate,
			"upload_burst", cfg.UploadBurst)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	l.Sugar().Infow("Pageproof Server running", "address", n.Addr())
	l.Sugar().Infow("Available endpoints",
		"upload", "POST /documents",
		"proof", "GET /documents/{id}/proof/{page}",
		"verify", "POST /verify",
		"metrics", "GET /metrics")
	l.Sugar().Info("Press Ctrl+C to stop")

	<-ctx.Done()
	l.Sugar().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop node: %w", err)
	}
	return nil
}

func parseServerConfig(c *cli.Context) *config.ServerConfig {
	return &config.ServerConfig{
		Port:            c.Int("port"),
		HashAlgorithm:   merkle.HashAlgorithm(c.String("hash-algorithm")),
		PersistenceType: config.PersistenceType(c.String("persistence-type")),
		DataPath:        c.String("data-path"),
		Redis: config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-key-prefix"),
		},
		MaxUploadBytes: c.Int64("max-upload-bytes"),
		UploadRate:     c.Float64("upload-rate"),
		UploadBurst:    c.Int("upload-burst"),
		Debug:          c.Bool("verbose"),
	}
}

func newPersistence(cfg *config.ServerConfig, l *zap.Logger) (persistence.IDocumentPersistence, error) {
	switch cfg.PersistenceType {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(l), nil
	case config.PersistenceTypeBadger:
		store, err := badgerPersistence.NewBadgerPersistence(cfg.DataPath, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.PersistenceTypeRedis:
		store, err := redisPersistence.NewRedisPersistence(&redisPersistence.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.PersistenceType)
	}
}
