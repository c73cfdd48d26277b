// Package httpapi serves devices, packages, snapshots and their tables over
// HTTP for "droiddb serve".
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackwell-systems/droiddb/internal/access"
	"github.com/blackwell-systems/droiddb/internal/adb"
	"github.com/blackwell-systems/droiddb/internal/localdb"
	"github.com/blackwell-systems/droiddb/internal/snapshots"
	"github.com/blackwell-systems/droiddb/internal/store"
)

type API struct {
	resolver  *access.Resolver
	snapshots *snapshots.Manager
	gatherer  prometheus.Gatherer
	timeout   time.Duration
	logger    *slog.Logger
}

// New returns an API. gatherer backs /metrics; timeout bounds one pull.
func New(resolver *access.Resolver, mgr *snapshots.Manager, gatherer prometheus.Gatherer, timeout time.Duration, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		resolver:  resolver,
		snapshots: mgr,
		gatherer:  gatherer,
		timeout:   timeout,
		logger:    logger,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.logRequests)
	r.Use(a.recoverPanics)

	r.Get("/healthz", a.health)
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	r.Route("/api", func(api chi.Router) {
		api.Get("/devices", a.listDevices)
		api.Get("/packages/{device}", a.listPackages)
		api.Get("/package-debuggable/{device}/{package}", a.packageDebuggable)
		api.Get("/databases/{device}/{package}", a.listDatabases)
		api.Post("/pull", a.pull)
		api.Get("/tables/{token}", a.listTables)
		api.Get("/table/{token}/{table}", a.tableData)
		api.Post("/query/{token}", a.query)
	})
	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := adb.ListDevices(r.Context(), a.resolver.Runner())
	if err != nil {
		writeError(w, http.StatusBadGateway, "adb_failed", err.Error())
		return
	}
	for i := range devices {
		if devices[i].Ready() {
			devices[i].HasRoot = a.resolver.ProbeRoot(r.Context(), devices[i].ID)
		}
	}
	if devices == nil {
		devices = []adb.Device{}
	}
	writeJSON(w, http.StatusOK, devices)
}

func (a *API) listPackages(w http.ResponseWriter, r *http.Request) {
	filter, err := adb.ParsePackageFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}
	pkgs, err := adb.ListPackages(r.Context(), a.resolver.Runner(), chi.URLParam(r, "device"), filter)
	if err != nil {
		writeError(w, http.StatusBadGateway, "adb_failed", err.Error())
		return
	}
	if pkgs == nil {
		pkgs = []adb.Package{}
	}
	writeJSON(w, http.StatusOK, pkgs)
}

func (a *API) packageDebuggable(w http.ResponseWriter, r *http.Request) {
	ok := a.resolver.ProbeDebuggable(r.Context(), chi.URLParam(r, "device"), chi.URLParam(r, "package"))
	writeJSON(w, http.StatusOK, map[string]any{"debuggable": ok})
}

func (a *API) listDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := a.resolver.ListDatabases(r.Context(), chi.URLParam(r, "device"), chi.URLParam(r, "package"))
	if err != nil && !errors.Is(err, access.ErrNoAccess) {
		writeError(w, http.StatusBadGateway, "adb_failed", err.Error())
		return
	}
	// No access pathway means no visible databases.
	if dbs == nil {
		dbs = []string{}
	}
	writeJSON(w, http.StatusOK, dbs)
}

type pullRequest struct {
	DeviceID    string `json:"device_id"`
	PackageName string `json:"package_name"`
	DBName      string `json:"db_name"`
}

func (a *API) pull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	if req.DeviceID == "" || req.PackageName == "" || req.DBName == "" {
		writeError(w, http.StatusBadRequest, "missing_parameters", "device_id, package_name and db_name are required")
		return
	}

	ctx := r.Context()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	res, err := a.snapshots.CreateSnapshot(ctx, req.DeviceID, req.PackageName, req.DBName)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, snapshots.ErrInvalidDatabase):
			status = http.StatusBadRequest
		case errors.Is(err, access.ErrNoAccess):
			status = http.StatusForbidden
		}
		body := map[string]any{
			"success": false,
			"error":   map[string]any{"code": "pull_failed", "message": err.Error()},
		}
		if res != nil {
			body["files"] = res.Files
		}
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   res.Token,
		"pathway": res.Pathway,
		"files":   res.Files,
	})
}

func (a *API) listTables(w http.ResponseWriter, r *http.Request) {
	db, ok := a.open(w, r)
	if !ok {
		return
	}
	defer db.Close()

	tables, err := db.Tables(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tables)
}

func (a *API) tableData(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", localdb.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
		return
	}

	db, ok := a.open(w, r)
	if !ok {
		return
	}
	defer db.Close()

	page, err := db.TableData(r.Context(), chi.URLParam(r, "table"), limit, offset)
	if err != nil {
		if errors.Is(err, localdb.ErrNoSuchTable) {
			writeError(w, http.StatusNotFound, "no_such_table", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type queryRequest struct {
	Query string `json:"query"`
}

func (a *API) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "No query provided")
		return
	}

	db, ok := a.open(w, r)
	if !ok {
		return
	}
	defer db.Close()

	res, err := db.Query(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, "query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// open resolves the token in the URL to a reconciled snapshot. It writes the
// error response itself and reports false on failure.
func (a *API) open(w http.ResponseWriter, r *http.Request) (*localdb.DB, bool) {
	local, err := a.snapshots.Lookup(chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "Database session expired or invalid")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return nil, false
	}

	db, err := localdb.Open(r.Context(), local.Base, a.logger)
	if err != nil {
		if errors.Is(err, localdb.ErrMissing) {
			writeError(w, http.StatusNotFound, "session_not_found", "Database session expired or invalid")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "open_failed", err.Error())
		return nil, false
	}
	return db, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// RunServer serves until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "err", err)
			return err
		}
		return nil
	}
}
