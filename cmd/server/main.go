package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tabsync/tabsync/internal/httpapi"
	"github.com/tabsync/tabsync/internal/relay"
	"github.com/tabsync/tabsync/internal/security"
	"github.com/tabsync/tabsync/internal/service"
	"github.com/tabsync/tabsync/internal/storage/sqlite"
	"github.com/tabsync/tabsync/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// allowedIPs parses the ALLOWED_IPS env var (comma-separated) and falls
// back to the loopback set when it is unset.
func allowedIPs() []string {
	raw := os.Getenv("ALLOWED_IPS")
	if raw == "" {
		return security.DefaultAllowedIPs
	}
	return strings.Split(raw, ",")
}

func main() {
	logging.Setup()

	port := getEnv("PORT", "8080")
	dbPath := getEnv("DB_PATH", "./data/receipts.db")
	staticPath := getEnv("STATIC_PATH", "./static")
	corsOrigin := getEnv("CORS_ORIGIN", "*")

	store, err := sqlite.New(dbPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", dbPath)

	allowlist := security.NewAllowlist(allowedIPs())
	hub := relay.NewHub()
	svc := service.NewReceiptService(store)

	api := httpapi.NewServer(svc, hub, allowlist, corsOrigin)

	root := chi.NewRouter()
	root.Mount("/", api.Handler())

	// Serve the frontend when a static dir is present; API-only
	// deployments simply omit it.
	if staticDir, err := filepath.Abs(staticPath); err == nil {
		if info, statErr := os.Stat(staticDir); statErr == nil && info.IsDir() {
			slog.Info("Serving static files", "path", staticDir)
			root.NotFound(staticHandler(staticDir))
		}
	}

	// h2c allows HTTP/2 without TLS behind the platform proxy.
	handler := h2c.NewHandler(root, &http2.Server{})

	addr := ":" + port
	slog.Info("Server starting", "address", addr, "url", fmt.Sprintf("http://localhost%s", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// staticHandler serves files under dir, falling back to index.html for
// unknown paths so client-side routes resolve.
func staticHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}

		urlPath := r.URL.Path
		if urlPath == "/" {
			urlPath = "/index.html"
		}

		filePath := filepath.Join(dir, filepath.Clean(urlPath))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}

		http.ServeFile(w, r, filePath)
	}
}
