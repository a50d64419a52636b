package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/docinsight/internal/app"
	"github.com/Lllllllleong/docinsight/internal/config"
	"github.com/Lllllllleong/docinsight/internal/logging"
	"github.com/Lllllllleong/docinsight/internal/models"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	appInstance *app.App
	once        sync.Once
	initErr     error
)

func init() {
	logging.Setup(config.GetEnv("LOG_MODE", "prod"))

	// Fired by the uploads bucket's object-finalized event.
	functions.CloudEvent("ExtractDocument", extractDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func extractDocument(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		appInstance, initErr = app.Load(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	if gcsEvent.Bucket != appInstance.Config.UploadsBucket {
		slog.Warn("Event from unexpected bucket. Skipping.", "bucket", gcsEvent.Bucket, "object", gcsEvent.Name)
		return nil
	}

	// Failures are recorded on the document and must not trigger redelivery.
	if err := appInstance.Extractor.ProcessUpload(ctx, gcsEvent.Name); err != nil {
		slog.Error("Extraction failed", "object", gcsEvent.Name, "error", err)
	}
	return nil
}
