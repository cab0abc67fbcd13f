// Package server assembles the HTTP surface: the Connect services, the QR
// export route, health checks and metrics, served over h2c.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kkkkikiki/redemption/api/redemption/v1/redemptionv1connect"
	"github.com/kkkkikiki/redemption/internal/config"
	"github.com/kkkkikiki/redemption/internal/model"
	"github.com/kkkkikiki/redemption/internal/qrexport"
	"github.com/kkkkikiki/redemption/internal/store"
)

// CodeLister lists the codes of a campaign; implemented by campaign.Service
type CodeLister interface {
	ListCodes(ctx context.Context, campaignID string, filter model.CodeFilter) ([]model.Code, error)
}

// Deps are the collaborators behind the HTTP surface
type Deps struct {
	Redemption    redemptionv1connect.RedemptionServiceHandler
	Admin         redemptionv1connect.AdminServiceHandler
	CampaignCodes CodeLister
	Codes         store.Codes
	QR         *qrexport.Renderer
	// Pinger reports backend health; nil for the memory store
	Pinger store.Pinger
	Logger *zap.Logger
}

// Options tune access control of the HTTP surface
type Options struct {
	AdminTokenHash string
	PublicRPS      float64
	PublicBurst    int
}

// NewHandler builds the request multiplexer
func NewHandler(deps Deps, opts Options) http.Handler {
	auth := NewAdminAuth(opts.AdminTokenHash)
	logging := NewLoggingInterceptor(deps.Logger)

	mux := http.NewServeMux()

	// Register redemption service handlers
	path, handler := redemptionv1connect.NewRedemptionServiceHandler(deps.Redemption,
		connect.WithInterceptors(logging, NewRateLimitInterceptor(opts.PublicRPS, opts.PublicBurst)))
	mux.Handle(path, handler)

	path, handler = redemptionv1connect.NewAdminServiceHandler(deps.Admin,
		connect.WithInterceptors(logging, auth.Interceptor()))
	mux.Handle(path, handler)

	mux.Handle("GET /admin/qr", requireAdmin(auth, qrArchiveHandler(deps)))
	mux.Handle("GET /admin/qr/{slug}", requireAdmin(auth, qrHandler(deps)))

	// Add health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"service":  "redemption",
			"hostname": hostname,
		})
	})

	// Add database health check endpoint
	mux.HandleFunc("GET /health/db", func(w http.ResponseWriter, r *http.Request) {
		if deps.Pinger == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "memory"})
			return
		}
		if err := deps.Pinger.Ping(r.Context()); err != nil {
			deps.Logger.Warn("database health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "postgres unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "postgres": "connected"})
	})

	// Add Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func requireAdmin(auth *AdminAuth, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := auth.Verify(r.Header.Get("Authorization")); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": err.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sizeParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("size")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("size must be an integer")
	}
	return n, nil
}

func qrHandler(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := r.PathValue("slug")

		size, err := sizeParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
			return
		}

		if _, err := deps.Codes.GetCodeBySlug(r.Context(), slug); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "code not found"})
				return
			}
			deps.Logger.Error("failed to look up code", zap.String("slug", slug), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "internal error"})
			return
		}

		png, err := deps.QR.PNG(slug, size)
		if err != nil {
			if errors.Is(err, model.ErrValidationFailed) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
				return
			}
			deps.Logger.Error("failed to render qr code", zap.String("slug", slug), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "internal error"})
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.png"`, slug))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	})
}

// qrArchiveHandler streams the QR images of a campaign's codes as a zip
// archive. It accepts campaign_id, an optional filter (all, used, unused),
// an optional comma separated slugs list and an optional size.
func qrArchiveHandler(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		campaignID := query.Get("campaign_id")
		if campaignID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "campaign_id is required"})
			return
		}

		size, err := sizeParam(r)
		if err == nil {
			err = qrexport.CheckSize(size)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
			return
		}

		codes, err := deps.CampaignCodes.ListCodes(r.Context(), campaignID, model.CodeFilter(query.Get("filter")))
		switch {
		case errors.Is(err, model.ErrValidationFailed):
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
			return
		case errors.Is(err, model.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "message": "campaign not found"})
			return
		case err != nil:
			deps.Logger.Error("failed to list codes", zap.String("campaign_id", campaignID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "internal error"})
			return
		}

		var selected map[string]bool
		if raw := query.Get("slugs"); raw != "" {
			selected = make(map[string]bool)
			for _, slug := range strings.Split(raw, ",") {
				if slug = strings.TrimSpace(slug); slug != "" {
					selected[slug] = true
				}
			}
		}
		slugs := make([]string, 0, len(codes))
		for _, c := range codes {
			if selected == nil || selected[c.Slug] {
				slugs = append(slugs, c.Slug)
			}
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-qr.zip"`, campaignID))
		w.WriteHeader(http.StatusOK)
		if err := deps.QR.WriteArchive(w, slugs, size); err != nil {
			// headers are gone; the client sees a truncated archive
			deps.Logger.Error("failed to stream qr archive",
				zap.String("campaign_id", campaignID),
				zap.Int("codes", len(slugs)),
				zap.Error(err))
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// NewHTTPServer creates a server with configuration optimized for high
// concurrency, speaking HTTP/2 without TLS
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           cfg.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Handler: h2c.NewHandler(handler, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}
}
