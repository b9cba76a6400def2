package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openarcloud/spatialdds-discovery/internal/config"
	"github.com/openarcloud/spatialdds-discovery/pkg/discovery"
	"github.com/openarcloud/spatialdds-discovery/pkg/protocol"
	"github.com/openarcloud/spatialdds-discovery/pkg/registry"
	"github.com/openarcloud/spatialdds-discovery/pkg/spatial"
)

const bridgeLogPrefix = "server:bridge"

// errorBody is the JSON error envelope the bridge returns.
type errorBody struct {
	Ok    bool                    `json:"ok"`
	Error *protocol.ProtocolError `json:"error"`
}

// Bridge translates HTTP calls into protocol exchanges. A single-slot
// permit serializes the round-trips so two requests never interleave their
// responses on the shared inbox.
type Bridge struct {
	client *discovery.Client
	store  *registry.Store
	cfg    *config.Config
	permit chan struct{}
}

// NewBridge creates the HTTP bridge over a discovery client and the local
// registry store.
func NewBridge(client *discovery.Client, store *registry.Store, cfg *config.Config) *Bridge {
	return &Bridge{
		client: client,
		store:  store,
		cfg:    cfg,
		permit: make(chan struct{}, 1),
	}
}

// Routes builds the bridge's HTTP mux.
func (b *Bridge) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", b.handleSearch)
	mux.HandleFunc("/register", b.handleRegister)
	mux.HandleFunc("/list", b.handleList)
	mux.HandleFunc("/health", b.handleHealth)
	mux.HandleFunc("/ready", b.handleReady)
	mux.HandleFunc("/v1/localize", b.handleLocalize)
	mux.HandleFunc("/v1/catalog/query", b.handleCatalogQuery)
	return mux
}

// acquire takes the single protocol round-trip permit, honoring request
// cancellation while waiting. The returned release must run even on panic.
func (b *Bridge) acquire(r *http.Request) (func(), bool) {
	select {
	case b.permit <- struct{}{}:
		return func() { <-b.permit }, true
	case <-r.Context().Done():
		return nil, false
	}
}

func (b *Bridge) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, protocol.CodeValidation, "POST required")
		return
	}
	var q protocol.CoverageQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeValidation, fmt.Sprintf("failed to decode query: %v", err))
		return
	}

	release, ok := b.acquire(r)
	if !ok {
		return
	}
	defer release()

	resp, err := b.client.Discover(q.Coverage, q.Expr, b.cfg.DiscoverTimeout)
	if err != nil {
		writeValidationOrInternal(w, err)
		return
	}
	if resp == nil {
		writeError(w, http.StatusBadGateway, protocol.CodeTimeout, "no coverage response within deadline")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, protocol.CodeValidation, "POST required")
		return
	}
	var entry registry.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeValidation, fmt.Sprintf("failed to decode entry: %v", err))
		return
	}
	if err := b.store.Register(entry); err != nil {
		writeValidationOrInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "registered": entry.CanonicalKey()})
}

func (b *Bridge) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, protocol.CodeValidation, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": b.store.List()})
}

func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"registered": b.store.Len(),
		"proto":      protocol.Version,
	})
}

func (b *Bridge) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (b *Bridge) handleLocalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, protocol.CodeValidation, "POST required")
		return
	}
	var req protocol.LocalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeValidation, fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	release, ok := b.acquire(r)
	if !ok {
		return
	}
	defer release()

	resp, err := b.client.Localize(req, b.cfg.LocalizeTimeout)
	if err != nil {
		writeValidationOrInternal(w, err)
		return
	}
	if resp == nil {
		writeError(w, http.StatusBadGateway, protocol.CodeTimeout, "no localize response within deadline")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Bridge) handleCatalogQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, protocol.CodeValidation, "POST required")
		return
	}
	var q protocol.CatalogQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeValidation, fmt.Sprintf("failed to decode query: %v", err))
		return
	}

	release, ok := b.acquire(r)
	if !ok {
		return
	}
	defer release()

	resp, err := b.client.QueryCatalog(q, b.cfg.CatalogTimeout)
	if err != nil {
		writeValidationOrInternal(w, err)
		return
	}
	if resp == nil {
		writeError(w, http.StatusBadGateway, protocol.CodeTimeout, "no catalog response within deadline")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeValidationOrInternal maps validation failures to 400 and anything
// else to 500.
func writeValidationOrInternal(w http.ResponseWriter, err error) {
	var verr *spatial.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, protocol.CodeValidation, verr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, protocol.CodeValidation, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: &protocol.ProtocolError{Code: code, Message: message, Retryable: status == http.StatusBadGateway}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", bridgeLogPrefix, err))
	}
}
