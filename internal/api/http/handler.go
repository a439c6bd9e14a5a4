package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/arkdb/internal/api"
	"github.com/arkilian/arkdb/internal/snapshot"
	"github.com/arkilian/arkdb/pkg/arkdb"
	"github.com/arkilian/arkdb/pkg/types"
)

// maxBodyBytes bounds request bodies; imports may carry whole snapshots.
const maxBodyBytes = 256 << 20

// Handler routes the arkdb JSON API.
type Handler struct {
	db  *arkdb.DB
	mux *http.ServeMux

	// ReadyTimeout bounds how long /health waits for provisioning.
	ReadyTimeout time.Duration
}

// NewHandler creates the API handler for db.
func NewHandler(db *arkdb.DB) *Handler {
	h := &Handler{db: db, mux: http.NewServeMux(), ReadyTimeout: 2 * time.Second}

	h.mux.HandleFunc("POST /v1/tables/{table}/find", h.find)
	h.mux.HandleFunc("POST /v1/tables/{table}/count", h.count)
	h.mux.HandleFunc("POST /v1/tables/{table}/page", h.page)
	h.mux.HandleFunc("POST /v1/tables/{table}/insert", h.insert)
	h.mux.HandleFunc("POST /v1/tables/{table}/update", h.update)
	h.mux.HandleFunc("POST /v1/tables/{table}/delete", h.delete)
	h.mux.HandleFunc("GET /v1/export", h.export)
	h.mux.HandleFunc("POST /v1/import", h.importSnapshot)
	h.mux.HandleFunc("GET /v1/topology", h.topology)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("GET /health", h.health)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *Handler) selectFor(w http.ResponseWriter, r *http.Request) (*arkdb.Select, *api.FindRequest, bool) {
	var req api.FindRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return nil, nil, false
	}
	sel, err := req.Apply(h.db.Select(r.PathValue("table")))
	if err != nil {
		writeError(w, r, err)
		return nil, nil, false
	}
	return sel, &req, true
}

func (h *Handler) find(w http.ResponseWriter, r *http.Request) {
	sel, _, ok := h.selectFor(w, r)
	if !ok {
		return
	}
	items, err := sel.FindAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	sel, _, ok := h.selectFor(w, r)
	if !ok {
		return
	}
	n, err := sel.Count(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	sel, req, ok := h.selectFor(w, r)
	if !ok {
		return
	}
	limit := 0
	if req.Limit != nil {
		limit = *req.Limit
	}
	res, err := sel.Page(r.Context(), arkdb.PageRequest{Cursor: req.Cursor, Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request) {
	var req api.InsertRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if len(req.Records) == 0 {
		writeBadRequest(w, r, "records must not be empty")
		return
	}
	ins := h.db.Insert(r.PathValue("table")).Values(req.Records...)
	if req.Upsert {
		ins.Upsert()
	}
	items, err := ins.Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"items": items})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	n, err := h.db.Update(r.PathValue("table")).Set(req.Set).Where(api.Where(req.Where)).Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req api.DeleteRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	n, err := h.db.Delete(r.PathValue("table")).Where(api.Where(req.Where)).Run(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := arkdb.ExportOptions{Tables: splitList(q.Get("tables")), IncludeMetadata: true}
	if v := q.Get("metadata"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeBadRequest(w, r, "metadata must be a boolean")
			return
		}
		opts.IncludeMetadata = include
	}
	format := snapshot.Format(q.Get("format"))
	if format == "" {
		format = snapshot.FormatJSON
	}

	snap, err := h.db.Export(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := snapshot.Encode(snap, format)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	contentType := "application/json"
	if format == snapshot.FormatSnappy {
		contentType = "application/x-snappy"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := snapshot.FormatJSON
	if q.Get("format") == string(snapshot.FormatSnappy) || r.Header.Get("Content-Type") == "application/x-snappy" {
		format = snapshot.FormatSnappy
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeBadRequest(w, r, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	snap, err := snapshot.Decode(data, format)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	res, err := h.db.Import(r.Context(), snap, arkdb.ImportOptions{
		Tables: splitList(q.Get("tables")),
		Mode:   types.ImportMode(q.Get("mode")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) topology(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ready(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":     h.db.Name(),
		"version":  h.db.Version(),
		"topology": h.db.Topology(),
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, r, "n must be a positive integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tables":    h.db.Stats().GetTopTables(n),
		"key_paths": h.db.Stats().GetTopKeyPaths(n),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.ReadyTimeout)
	defer cancel()
	if err := h.db.Ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "version": h.db.Version()})
}
