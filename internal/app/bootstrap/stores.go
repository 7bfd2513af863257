package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/partsplit-prereg/internal/config"
	"github.com/wolfman30/partsplit-prereg/internal/preview"
	"github.com/wolfman30/partsplit-prereg/internal/registration"
	"github.com/wolfman30/partsplit-prereg/internal/storage/objects"
	"github.com/wolfman30/partsplit-prereg/internal/storage/records"
	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

// PreviewBackend stores previews and serves them back to the page.
type PreviewBackend interface {
	registration.PreviewStore
	Get(ctx context.Context, ref string) ([]byte, string, error)
}

// Clients carries the external clients the stores may need. Any may be nil
// when its backend is not selected.
type Clients struct {
	S3       objects.S3API
	DynamoDB records.DynamoAPI
	DB       records.DB
	Redis    *redis.Client
}

// Stores is the wired storage layer for registration flows.
type Stores struct {
	Objects    registration.ObjectStore
	Records    registration.RecordStore
	Dispatcher registration.FormDispatcher
	Lister     records.Lister
	Previews   PreviewBackend
	// LocalObjects is set when uploads are kept in memory and served by the API.
	LocalObjects *objects.MemoryStore
}

// BuildStores selects object, record and preview backends from config.
func BuildStores(cfg *appconfig.Config, clients Clients, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	stores := &Stores{}

	switch cfg.ObjectBackend {
	case appconfig.ObjectBackendS3:
		if clients.S3 == nil {
			return nil, fmt.Errorf("bootstrap: s3 object backend needs an s3 client")
		}
		stores.Objects = objects.NewS3Store(clients.S3, objects.S3Config{
			Bucket:        cfg.UploadBucket,
			Prefix:        cfg.UploadPrefix,
			PublicBaseURL: cfg.UploadPublicBaseURL,
			Region:        cfg.AWSRegion,
		}, logger)
	case appconfig.ObjectBackendMemory, "":
		base := cfg.UploadPublicBaseURL
		if base == "" {
			base = strings.TrimRight(cfg.PublicBaseURL, "/") + "/uploads"
		}
		mem := objects.NewMemoryStore(base)
		stores.Objects = mem
		stores.LocalObjects = mem
	default:
		return nil, fmt.Errorf("bootstrap: unknown object backend %q", cfg.ObjectBackend)
	}

	switch cfg.RecordBackend {
	case appconfig.RecordBackendPostgres:
		if clients.DB == nil {
			return nil, fmt.Errorf("bootstrap: postgres record backend needs DATABASE_URL")
		}
		pg := records.NewPostgresStore(clients.DB)
		stores.Records, stores.Lister = pg, pg
	case appconfig.RecordBackendDynamoDB:
		if clients.DynamoDB == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb record backend needs a dynamodb client")
		}
		stores.Records = records.NewDynamoStore(clients.DynamoDB, cfg.DynamoRegistrationTable, logger)
	case appconfig.RecordBackendMemory, appconfig.RecordBackendFormPost, "":
		mem := records.NewMemoryStore()
		stores.Records, stores.Lister = mem, mem
	default:
		return nil, fmt.Errorf("bootstrap: unknown record backend %q", cfg.RecordBackend)
	}

	if cfg.RecordBackend == appconfig.RecordBackendFormPost {
		if strings.TrimSpace(cfg.FormPostURL) == "" {
			return nil, fmt.Errorf("bootstrap: formpost record backend needs FORM_POST_URL")
		}
		stores.Dispatcher = records.NewFormPostDispatcher(nil, records.FormPostConfig{
			URL:     cfg.FormPostURL,
			Field:   cfg.FormPostField,
			Timeout: cfg.PersistTimeout,
		}, logger)
	}

	if clients.Redis != nil {
		stores.Previews = preview.NewRedisStore(clients.Redis, cfg.PreviewTTL)
	} else {
		stores.Previews = registration.NewMemoryPreviews()
	}

	logger.Info("registration stores configured",
		"object_backend", cfg.ObjectBackend,
		"record_backend", cfg.RecordBackend,
		"redis_previews", clients.Redis != nil,
	)
	return stores, nil
}

// FlowFactory builds one flow per visitor session. Forms without an asset go
// through the fire-and-forget dispatcher when one is configured; asset forms
// always need an acknowledged record store.
func FlowFactory(cfg *appconfig.Config, stores *Stores, listener registration.Listener, recorder registration.Recorder, logger *logging.Logger) registration.FlowFactory {
	return func(variant registration.Variant) (*registration.Flow, error) {
		collab := registration.Collaborators{
			Objects:  stores.Objects,
			Previews: stores.Previews,
		}
		if stores.Dispatcher != nil && !variant.RequiresAsset {
			collab.Dispatcher = stores.Dispatcher
		} else {
			collab.Records = stores.Records
		}
		return registration.NewFlow(variant, collab,
			registration.WithLogger(logger),
			registration.WithListener(listener),
			registration.WithRecorder(recorder),
			registration.WithTimeouts(cfg.UploadTimeout, cfg.PersistTimeout),
			registration.WithOrphanCompensation(cfg.CompensateOrphans),
		)
	}
}
