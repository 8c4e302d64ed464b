// Package httpapi exposes the canvas store over REST plus a websocket
// room endpoint for live collaboration.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"nhooyr.io/websocket"

	"github.com/prodspace/canvaskit/internal/canvaskit"
	"github.com/prodspace/canvaskit/internal/collab"
)

type ServerConfig struct {
	JWTSecret       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
}

type Server struct {
	store       *canvaskit.Store
	hub         *collab.Hub
	cfg         ServerConfig
	schemas     *requestSchemas
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(store *canvaskit.Store) *Server {
	return NewServerWithConfig(store, nil, ServerConfig{})
}

// NewServerWithConfig wires the store and, optionally, a collaboration
// hub. A nil hub disables the room endpoint.
func NewServerWithConfig(store *canvaskit.Store, hub *collab.Hub, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	schemas, err := compileRequestSchemas()
	if err != nil {
		// Schemas are compile-time constants; failing here is a bug.
		panic(err)
	}
	return &Server{
		store:       store,
		hub:         hub,
		cfg:         cfg,
		schemas:     schemas,
		rateLimiter: limiter,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/" || r.URL.Path == "/dashboard" {
		s.handleDashboard(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}

	var requiredScope string
	var route string
	switch {
	case len(parts) == 2 && parts[1] == "canvases" && r.Method == http.MethodGet:
		requiredScope = "canvas:read"
		route = "list_canvases"
	case len(parts) == 2 && parts[1] == "canvases" && r.Method == http.MethodPost:
		requiredScope = "canvas:write"
		route = "create_canvas"
	case len(parts) == 3 && parts[1] == "canvases" && r.Method == http.MethodGet:
		requiredScope = "canvas:read"
		route = "get_canvas"
	case len(parts) == 3 && parts[1] == "canvases" && r.Method == http.MethodPatch:
		requiredScope = "canvas:write"
		route = "update_canvas"
	case len(parts) == 3 && parts[1] == "canvases" && r.Method == http.MethodDelete:
		requiredScope = "canvas:write"
		route = "delete_canvas"
	case len(parts) == 4 && parts[1] == "canvases" && parts[3] == "nodes" && r.Method == http.MethodPost:
		requiredScope = "canvas:write"
		route = "create_node"
	case len(parts) == 4 && parts[1] == "canvases" && parts[3] == "connections" && r.Method == http.MethodPost:
		requiredScope = "canvas:write"
		route = "create_connection"
	case len(parts) == 4 && parts[1] == "canvases" && parts[3] == "positions" && r.Method == http.MethodPut:
		requiredScope = "canvas:write"
		route = "batch_positions"
	case len(parts) == 4 && parts[1] == "canvases" && parts[3] == "room" && r.Method == http.MethodGet:
		requiredScope = "canvas:write"
		route = "room"
	case len(parts) == 3 && parts[1] == "nodes" && r.Method == http.MethodGet:
		requiredScope = "canvas:read"
		route = "get_node"
	case len(parts) == 3 && parts[1] == "nodes" && r.Method == http.MethodPatch:
		requiredScope = "canvas:write"
		route = "update_node"
	case len(parts) == 3 && parts[1] == "nodes" && r.Method == http.MethodDelete:
		requiredScope = "canvas:write"
		route = "delete_node"
	case len(parts) == 3 && parts[1] == "connections" && r.Method == http.MethodDelete:
		requiredScope = "canvas:write"
		route = "delete_connection"
	case len(parts) == 3 && parts[1] == "admin" && parts[2] == "rules" && r.Method == http.MethodGet:
		requiredScope = "canvas:read"
		route = "rules"
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}

	claims, authErr := authorizeBearer(bearerFromRequest(r), s.cfg.JWTSecret, requiredScope, time.Now().UTC())
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, getCorrelationID(r))
		return
	}
	correlationID := getCorrelationID(r)
	if s.rateLimiter != nil {
		if !s.rateLimiter.allow(claims.UserName, time.Now().UTC()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", correlationID)
			return
		}
	}

	switch route {
	case "list_canvases":
		s.handleListCanvases(w, correlationID)
	case "create_canvas":
		s.handleCreateCanvas(w, r, correlationID)
	case "get_canvas":
		s.handleGetCanvas(w, parts[2], correlationID)
	case "update_canvas":
		s.handleUpdateCanvas(w, r, parts[2], correlationID)
	case "delete_canvas":
		s.handleDeleteCanvas(w, parts[2], correlationID)
	case "create_node":
		s.handleCreateNode(w, r, parts[2], correlationID)
	case "create_connection":
		s.handleCreateConnection(w, r, parts[2], correlationID)
	case "batch_positions":
		s.handleBatchPositions(w, r, parts[2], correlationID)
	case "room":
		s.handleRoom(w, r, parts[2], correlationID)
	case "get_node":
		s.handleGetNode(w, parts[2], correlationID)
	case "update_node":
		s.handleUpdateNode(w, r, parts[2], correlationID)
	case "delete_node":
		s.handleDeleteNode(w, parts[2], correlationID)
	case "delete_connection":
		s.handleDeleteConnection(w, parts[2], correlationID)
	case "rules":
		writeJSON(w, http.StatusOK, s.store.Rules())
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

// bearerFromRequest also accepts a token query parameter because
// browser websocket clients cannot set the Authorization header.
func bearerFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return header
	}
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return "Bearer " + token
	}
	return ""
}

func (s *Server) handleListCanvases(w http.ResponseWriter, correlationID string) {
	canvases := s.store.ListCanvases()
	writeJSON(w, http.StatusOK, canvases)
}

func (s *Server) handleCreateCanvas(w http.ResponseWriter, r *http.Request, correlationID string) {
	var req canvaskit.CreateCanvasRequest
	if !s.decodeValidated(w, r, correlationID, s.schemas.createCanvas, &req) {
		return
	}
	canvas, err := s.store.CreateCanvas(req)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusCreated, canvas)
}

func (s *Server) handleGetCanvas(w http.ResponseWriter, rawID, correlationID string) {
	canvasID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	doc, err := s.store.GetCanvas(canvasID)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateCanvas(w http.ResponseWriter, r *http.Request, rawID, correlationID string) {
	canvasID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	var req canvaskit.UpdateCanvasRequest
	if !s.decodeValidated(w, r, correlationID, s.schemas.updateCanvas, &req) {
		return
	}
	canvas, err := s.store.UpdateCanvas(canvasID, req)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, canvas)
}

func (s *Server) handleDeleteCanvas(w http.ResponseWriter, rawID, correlationID string) {
	canvasID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	if err := s.store.DeleteCanvas(canvasID); err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request, rawID, correlationID string) {
	canvasID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	var req canvaskit.CreateNodeRequest
	if !s.decodeValidated(w, r, correlationID, s.schemas.createNode, &req) {
		return
	}
	node, err := s.store.CreateNode(canvasID, req)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleGetNode(w http.ResponseWriter, rawID, correlationID string) {
	nodeID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	node, err := s.store.GetNode(nodeID)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request, rawID, correlationID string) {
	nodeID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	var req canvaskit.UpdateNodeRequest
	if !s.decodeValidated(w, r, correlationID, s.schemas.updateNode, &req) {
		return
	}
	node, err := s.store.UpdateNode(nodeID, req)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, rawID, correlationID string) {
	nodeID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	if err := s.store.DeleteNode(nodeID); err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request, rawID, correlationID string) {
	canvasID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	var req canvaskit.CreateConnectionRequest
	if !s.decodeValidated(w, r, correlationID, s.schemas.createConnection, &req) {
		return
	}
	conn, err := s.store.CreateConnection(canvasID, req)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, rawID, correlationID string) {
	connectionID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	if err := s.store.DeleteConnection(connectionID); err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleBatchPositions(w http.ResponseWriter, r *http.Request, rawID, correlationID string) {
	canvasID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	var req canvaskit.BatchPositionUpdate
	if !s.decodeValidated(w, r, correlationID, s.schemas.batchPositions, &req) {
		return
	}
	updated, err := s.store.BatchUpdatePositions(canvasID, req)
	if err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request, rawID, correlationID string) {
	if s.hub == nil {
		writeError(w, http.StatusNotFound, "collab_disabled", "collaboration is not enabled", correlationID)
		return
	}
	canvasID, ok := parseID(w, rawID, correlationID)
	if !ok {
		return
	}
	if _, err := s.store.GetCanvas(canvasID); err != nil {
		writeStoreError(w, err, correlationID)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "room closed")
	if err := s.hub.Serve(r.Context(), conn, canvasID); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func writeStoreError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, canvaskit.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), correlationID)
	case errors.Is(err, canvaskit.ErrSelfLoop):
		writeError(w, http.StatusUnprocessableEntity, "self_loop", err.Error(), correlationID)
	case errors.Is(err, canvaskit.ErrCrossCanvas):
		writeError(w, http.StatusUnprocessableEntity, "cross_canvas", err.Error(), correlationID)
	case errors.Is(err, canvaskit.ErrRuleViolation):
		writeError(w, http.StatusUnprocessableEntity, "rule_violation", err.Error(), correlationID)
	case errors.Is(err, canvaskit.ErrLocked):
		writeError(w, http.StatusConflict, "locked", err.Error(), correlationID)
	case errors.Is(err, canvaskit.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
	}
}

func parseID(w http.ResponseWriter, raw, correlationID string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid id in path", correlationID)
		return 0, false
	}
	return id, true
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

// decodeValidated reads the body, checks it against the schema, then
// decodes it into dst.
func (s *Server) decodeValidated(w http.ResponseWriter, r *http.Request, correlationID string, schema *jsonschema.Schema, dst any) bool {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return false
	}
	if err := validatePayload(schema, body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	payload := map[string]any{
		"code":    code,
		"message": message,
	}
	if correlationID != "" {
		payload["correlationId"] = correlationID
	}
	writeJSON(w, status, payload)
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		l.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(l.window),
		}
		return true
	}
	if entry.count >= l.max {
		return false
	}
	entry.count++
	l.entries[key] = entry
	return true
}
