// Package httpapi serves a read-only JSON view of the catalog for operators.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/stockbot/core/inventory"
	"github.com/m3rciful/stockbot/core/logger"
)

const maxAuditLimit = 500

// Catalog is the read side of the inventory store.
type Catalog interface {
	List() []inventory.Item
	Get(id string) (inventory.Item, error)
	Stats() inventory.Stats
	AuditTrail(ctx context.Context, limit int) ([]inventory.AuditEntry, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type itemView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  int64     `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type auditView struct {
	ID                string    `json:"id"`
	ActorID           string    `json:"actor_id"`
	ItemID            string    `json:"item_id"`
	Action            string    `json:"action"`
	Delta             int64     `json:"delta"`
	ResultingQuantity int64     `json:"resulting_quantity"`
	Timestamp         time.Time `json:"timestamp"`
}

type handler struct {
	catalog      Catalog
	db           Pinger
	defaultLimit int
}

// NewRouter builds the ops API routes.
func NewRouter(catalog Catalog, db Pinger, defaultAuditLimit int) http.Handler {
	if defaultAuditLimit <= 0 {
		defaultAuditLimit = 10
	}
	h := &handler{catalog: catalog, db: db, defaultLimit: defaultAuditLimit}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLog)

	r.Get("/healthz", h.health)
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.listItems)
		r.Get("/{id}", h.getItem)
	})
	r.Get("/audit", h.audit)
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	st := h.catalog.Stats()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "items": st.Items, "units": st.Units})
}

func (h *handler) listItems(w http.ResponseWriter, _ *http.Request) {
	items := h.catalog.List()
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		out = append(out, toItemView(it))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.catalog.Get(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, inventory.ErrInvalidID):
		writeError(w, http.StatusBadRequest, "invalid item id")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, toItemView(it))
	}
}

func (h *handler) audit(w http.ResponseWriter, r *http.Request) {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}
	entries, err := h.catalog.AuditTrail(r.Context(), limit)
	if err != nil {
		logger.HTTP.ErrorContext(r.Context(), "audit read failed",
			slog.String("event", "http.audit"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.String("err_code", "STORAGE"),
		)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{
			ID:                e.ID,
			ActorID:           e.ActorID,
			ItemID:            e.ItemID,
			Action:            string(e.Action),
			Delta:             e.Delta,
			ResultingQuantity: e.ResultingQuantity,
			Timestamp:         e.Timestamp.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func toItemView(it inventory.Item) itemView {
	return itemView{ID: it.ID, Name: it.Name, Quantity: it.Quantity, UpdatedAt: it.UpdatedAt.UTC()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.HTTP.Warn("encode failed",
			slog.String("event", "http.encode"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logger.WithRID(r.Context(), chimw.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.LogEvent(ctx, logger.HTTP, level, "http.request",
			slog.String("status", statusFor(ww.Status())),
			slog.String("action", r.Method+" "+r.URL.Path),
			slog.Int("http_code", ww.Status()),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}

func statusFor(code int) string {
	switch {
	case code >= 500:
		return "fail"
	case code >= 400:
		return "rejected"
	default:
		return "ok"
	}
}

// Serve runs the API on listen until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, listen string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("ops api listening",
			slog.String("event", "http.listen"),
			slog.String("status", "ok"),
			slog.String("listen", listen),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
