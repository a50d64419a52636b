// Package app wires configuration, storage, model providers and services
// together for the entrypoints.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docinsight/internal/config"
	"github.com/Lllllllleong/docinsight/internal/gcp"
	"github.com/Lllllllleong/docinsight/internal/httpapi"
	"github.com/Lllllllleong/docinsight/internal/llm"
	"github.com/Lllllllleong/docinsight/internal/lock"
	"github.com/Lllllllleong/docinsight/internal/minio"
	"github.com/Lllllllleong/docinsight/internal/openai"
	"github.com/Lllllllleong/docinsight/internal/pdftext"
	"github.com/Lllllllleong/docinsight/internal/services"
)

// App holds the fully wired services.
type App struct {
	Config     *config.Config
	Access     *services.Access
	Gate       *services.UsageGate
	Uploader   *services.Uploader
	Extractor  *services.Extractor
	Summarizer *services.Summarizer
	Chat       *services.ChatEngine
	Deleter    *services.DocumentDeleter

	closers []func() error
}

// New connects every backend named by cfg. On error, anything already opened
// is closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.wire(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	slog.Info("Services initialized.",
		"blobBackend", cfg.BlobBackend,
		"provider", cfg.CompletionProvider,
		"primaryModel", cfg.PrimaryModel,
		"fallbackModel", cfg.FallbackModel,
		"distributedLock", cfg.RedisAddr != "")
	return a, nil
}

func (a *App) wire(ctx context.Context, cfg *config.Config) error {
	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, fsClient.Close)
	store := gcp.NewFirestoreStore(fsClient, cfg.CollectionPrefix)

	blobs, err := a.newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	backend, err := a.newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	gateway, err := services.NewGateway(backend, services.GatewayConfig{
		PrimaryModel:  cfg.PrimaryModel,
		FallbackModel: cfg.FallbackModel,
		Timeout:       cfg.GenerationTimeout,
	})
	if err != nil {
		return err
	}

	locker, err := a.newLocker(ctx, cfg)
	if err != nil {
		return err
	}

	limits, err := config.LoadTierLimits(cfg.TierLimitsFile, services.DefaultTierLimits())
	if err != nil {
		return err
	}

	parser := pdftext.Parser{}
	a.Access = services.NewAccess(store, store)
	a.Gate = services.NewUsageGate(store, store, limits)
	a.Uploader = services.NewUploader(a.Access, store, blobs, parser, a.Gate)
	a.Extractor = services.NewExtractor(store, blobs, parser, locker)
	a.Summarizer = services.NewSummarizer(a.Access, store, a.Gate, gateway)
	a.Chat = services.NewChatEngine(a.Access, store, store, a.Gate, gateway)
	a.Deleter = services.NewDocumentDeleter(a.Access, store, store, store, blobs)
	return nil
}

func (a *App) newBlobStore(ctx context.Context, cfg *config.Config) (services.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendMinio:
		return minio.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.UploadsBucket, cfg.MinioUseSSL)
	default:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return gcp.NewBucketStore(client, cfg.UploadsBucket), nil
	}
}

func (a *App) newBackend(ctx context.Context, cfg *config.Config) (llm.Backend, error) {
	switch cfg.CompletionProvider {
	case config.ProviderOpenAI:
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	default:
		vc, err := gcp.NewVertexCompleter(ctx, cfg.ProjectID, cfg.VertexAIRegion)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, vc.Close)
		return vc, nil
	}
}

func (a *App) newLocker(ctx context.Context, cfg *config.Config) (services.Locker, error) {
	if cfg.RedisAddr == "" {
		return lock.NewLocal(), nil
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	return lock.NewRedis(rdb, cfg.CollectionPrefix+"docinsight:", cfg.ExtractionLockTTL), nil
}

// HTTPHandler exposes the services through the REST API.
func (a *App) HTTPHandler() *httpapi.Handler {
	return &httpapi.Handler{
		Access:        a.Access,
		Uploader:      a.Uploader,
		Extractor:     a.Extractor,
		Summarizer:    a.Summarizer,
		Chat:          a.Chat,
		Deleter:       a.Deleter,
		Usage:         a.Gate,
		SubjectHeader: a.Config.SubjectHeader,

		ExtractOnUpload: a.Config.ExtractOnUpload,
	}
}

// Close releases every client in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Load reads the configuration from the environment and wires the services.
func Load(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return New(ctx, cfg)
}
