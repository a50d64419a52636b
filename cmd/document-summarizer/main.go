package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/docinsight/internal/app"
	"github.com/Lllllllleong/docinsight/internal/config"
	"github.com/Lllllllleong/docinsight/internal/httpapi"
	"github.com/Lllllllleong/docinsight/internal/logging"
	"github.com/Lllllllleong/docinsight/internal/models"
)

var (
	appInstance *app.App
	once        sync.Once
	initErr     error
)

func init() {
	logging.Setup(config.GetEnv("LOG_MODE", "prod"))

	functions.HTTP("HandleSummarize", handleSummarize)
}

// main is required by the Go Functions Framework.
func main() {}

// handleSummarize generates a new summary for the document named in the body.
func handleSummarize(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		appInstance, initErr = app.Load(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Summarizer initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.SummarizeRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}

	subject := httpapi.Subject(r, appInstance.Config.SubjectHeader)
	summary, err := appInstance.Summarizer.Summarize(r.Context(), subject, req.DocumentID, req.Format, req.Length)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.ToSummarizeResponse(summary))
}
