package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/atomicdeploy/esql-bench/pkg/engine"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// Server is an in-memory stand-in for the search engine REST API
type Server struct {
	router      *mux.Router
	indices     map[string]*index
	indicesMu   sync.RWMutex
	wsClients   map[*websocket.Conn]bool
	wsClientsMu sync.RWMutex
	upgrader    websocket.Upgrader
	quiet       bool
}

type index struct {
	schema engine.Schema
	docs   []document
}

// Event is broadcast to websocket subscribers after every mutation
type Event struct {
	Type      string `json:"type"`
	Index     string `json:"index"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp"`
	DocCount  int    `json:"doc_count"`
}

// Option configures a Server
type Option func(*Server)

// WithQuiet disables per-request logging
func WithQuiet() Option {
	return func(s *Server) {
		s.quiet = true
	}
}

// NewServer creates a new mock engine with no indices
func NewServer(opts ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		indices:   make(map[string]*index),
		wsClients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/_cat/indices", s.handleCatIndices).Methods("GET")
	s.router.HandleFunc("/_xpack/sql/translate", s.handleTranslate).Methods("GET", "POST")
	s.router.HandleFunc("/_sql/translate", s.handleTranslate).Methods("GET", "POST")
	s.router.HandleFunc("/{index}", s.handleCreateIndex).Methods("PUT")
	s.router.HandleFunc("/{index}", s.handleDeleteIndex).Methods("DELETE")
	s.router.HandleFunc("/{index}/_mapping", s.handlePutMapping).Methods("PUT", "POST")
	s.router.HandleFunc("/{index}/_mapping/{type}", s.handlePutMapping).Methods("PUT", "POST")
	s.router.HandleFunc("/{index}/_doc", s.handleIndexDocument).Methods("POST")
	s.router.HandleFunc("/{index}/_search", s.handleSearch).Methods("GET", "POST")
	s.router.HandleFunc("/{index}/_count", s.handleCount).Methods("GET", "POST")
}

// Handler exposes the router, e.g. for httptest servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	log.Printf("🚀 Starting mock engine on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Close disconnects all websocket subscribers
func (s *Server) Close() error {
	s.wsClientsMu.Lock()
	defer s.wsClientsMu.Unlock()

	for conn := range s.wsClients {
		conn.Close()
		delete(s.wsClients, conn)
	}
	return nil
}

func (s *Server) logf(format string, args ...interface{}) {
	if !s.quiet {
		log.Printf(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError mirrors the engine's error envelope
func writeError(w http.ResponseWriter, status int, typ, reason string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"type":   typ,
			"reason": reason,
		},
		"status": status,
	})
}

func indexNotFound(w http.ResponseWriter, name string) {
	writeError(w, http.StatusNotFound, "index_not_found_exception", fmt.Sprintf("no such index [%s]", name))
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// handleInfo returns a cluster banner like the real engine's root endpoint
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":         "esql-bench",
		"cluster_name": "mock",
		"tagline":      "You Know, for Search",
	})
}

func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["index"]

	s.indicesMu.Lock()
	if _, exists := s.indices[name]; exists {
		s.indicesMu.Unlock()
		writeError(w, http.StatusBadRequest, "resource_already_exists_exception",
			fmt.Sprintf("index [%s] already exists", name))
		return
	}
	s.indices[name] = &index{schema: make(engine.Schema)}
	s.indicesMu.Unlock()

	s.logf("📁 Created index %s", name)
	s.broadcast(Event{Type: "create_index", Index: name})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"acknowledged":        true,
		"shards_acknowledged": true,
		"index":               name,
	})
}

func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["index"]

	s.indicesMu.Lock()
	if _, exists := s.indices[name]; !exists {
		s.indicesMu.Unlock()
		indexNotFound(w, name)
		return
	}
	delete(s.indices, name)
	s.indicesMu.Unlock()

	s.logf("🗑️  Deleted index %s", name)
	s.broadcast(Event{Type: "delete_index", Index: name})
	writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true})
}

func (s *Server) handlePutMapping(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["index"]

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
		return
	}
	schema, err := engine.ParseSchema(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "mapper_parsing_exception", err.Error())
		return
	}

	s.indicesMu.Lock()
	idx, exists := s.indices[name]
	if !exists {
		s.indicesMu.Unlock()
		indexNotFound(w, name)
		return
	}
	for col, typ := range schema {
		if old, ok := idx.schema[col]; ok && old != typ {
			s.indicesMu.Unlock()
			writeError(w, http.StatusBadRequest, "illegal_argument_exception",
				fmt.Sprintf("mapper [%s] cannot be changed from type [%s] to [%s]", col, old, typ))
			return
		}
		idx.schema[col] = typ
	}
	s.indicesMu.Unlock()

	s.logf("🗂️  Put mapping on %s (%d columns)", name, len(schema))
	s.broadcast(Event{Type: "put_mapping", Index: name})
	writeJSON(w, http.StatusOK, map[string]interface{}{"acknowledged": true})
}

func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["index"]

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
		return
	}
	var source map[string]interface{}
	if err := json.Unmarshal(body, &source); err != nil {
		writeError(w, http.StatusBadRequest, "mapper_parsing_exception", "failed to parse document: "+err.Error())
		return
	}
	if source == nil {
		source = make(map[string]interface{})
	}

	id := uuid.NewString()

	// indexing into a missing index creates it, as the real engine does
	s.indicesMu.Lock()
	idx, exists := s.indices[name]
	if !exists {
		idx = &index{schema: make(engine.Schema)}
		s.indices[name] = idx
	}
	idx.docs = append(idx.docs, document{ID: id, Source: source})
	count := len(idx.docs)
	s.indicesMu.Unlock()

	s.broadcast(Event{Type: "index_document", Index: name, ID: id, DocCount: count})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"_index":   name,
		"_type":    "_doc",
		"_id":      id,
		"_version": 1,
		"result":   "created",
	})
}

// snapshot returns a copy of the index documents in insertion order
func (s *Server) snapshot(name string) ([]document, bool) {
	s.indicesMu.RLock()
	defer s.indicesMu.RUnlock()

	idx, exists := s.indices[name]
	if !exists {
		return nil, false
	}
	docs := make([]document, len(idx.docs))
	copy(docs, idx.docs)
	return docs, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["index"]

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
		return
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "parsing_exception", "request body is not valid JSON")
		return
	}

	docs, exists := s.snapshot(name)
	if !exists {
		indexNotFound(w, name)
		return
	}

	resp, err := search(name, gjson.ParseBytes(body), docs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parsing_exception", err.Error())
		return
	}

	s.logf("🔍 Search on %s", name)
	writeJSON(w, http.StatusOK, resp)
}

// search evaluates a search body against docs
func search(name string, body gjson.Result, docs []document) (map[string]interface{}, error) {
	match, err := compileQuery(body.Get("query"))
	if err != nil {
		return nil, err
	}

	matched := make([]document, 0, len(docs))
	for _, d := range docs {
		if match(d.Source) {
			matched = append(matched, d)
		}
	}

	keys, err := parseSort(body.Get("sort"))
	if err != nil {
		return nil, err
	}
	sortDocs(matched, keys)

	size := defaultSearchSize
	if v := body.Get("size"); v.Exists() {
		size = int(v.Int())
	}
	from := int(body.Get("from").Int())
	if size < 0 || from < 0 {
		return nil, fmt.Errorf("[from] and [size] must not be negative")
	}

	page := make([]interface{}, 0)
	for i := from; i < len(matched) && i < from+size; i++ {
		page = append(page, map[string]interface{}{
			"_index":  name,
			"_type":   "_doc",
			"_id":     matched[i].ID,
			"_score":  1.0,
			"_source": matched[i].Source,
		})
	}

	resp := map[string]interface{}{
		"took":      0,
		"timed_out": false,
		"hits": map[string]interface{}{
			"total":     map[string]interface{}{"value": len(matched), "relation": "eq"},
			"max_score": 1.0,
			"hits":      page,
		},
	}

	aggs := body.Get("aggs")
	if !aggs.Exists() {
		aggs = body.Get("aggregations")
	}
	if aggs.Exists() {
		out := make(map[string]interface{})
		var aggErr error
		aggs.ForEach(func(key, value gjson.Result) bool {
			var res map[string]interface{}
			res, aggErr = aggregate(value, matched)
			if aggErr != nil {
				return false
			}
			out[key.String()] = res
			return true
		})
		if aggErr != nil {
			return nil, aggErr
		}
		resp["aggregations"] = out
	}

	return resp, nil
}

// handleCount counts the documents matching the body's query, all of them without one
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["index"]

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
		return
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "parsing_exception", "request body is not valid JSON")
		return
	}

	docs, exists := s.snapshot(name)
	if !exists {
		indexNotFound(w, name)
		return
	}

	match, err := compileQuery(gjson.GetBytes(body, "query"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "parsing_exception", err.Error())
		return
	}

	count := 0
	for _, d := range docs {
		if match(d.Source) {
			count++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"count": count})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse_exception", err.Error())
		return
	}

	sql := gjson.GetBytes(body, "query")
	if !sql.Exists() || sql.String() == "" {
		writeError(w, http.StatusBadRequest, "parsing_exception", "request body requires a [query]")
		return
	}

	dsl, err := translateSQL(sql.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "verification_exception", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dsl)
}

// Indices returns the names of all indices with their document counts
func (s *Server) Indices() map[string]int {
	s.indicesMu.RLock()
	defer s.indicesMu.RUnlock()

	out := make(map[string]int, len(s.indices))
	for name, idx := range s.indices {
		out[name] = len(idx.docs)
	}
	return out
}

// handleCatIndices lists the indices in the JSON form of the cat API
func (s *Server) handleCatIndices(w http.ResponseWriter, r *http.Request) {
	counts := s.Indices()

	rows := make([]map[string]string, 0, len(counts))
	for _, name := range s.IndexNames() {
		n, ok := counts[name]
		if !ok {
			// created after counts was taken
			continue
		}
		rows = append(rows, map[string]string{
			"health":     "green",
			"status":     "open",
			"index":      name,
			"docs.count": strconv.Itoa(n),
		})
	}

	writeJSON(w, http.StatusOK, rows)
}

// IndexNames returns the sorted names of all indices
func (s *Server) IndexNames() []string {
	indices := s.Indices()
	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// handleWebSocket registers a subscriber for mutation events
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	s.wsClientsMu.Lock()
	s.wsClients[conn] = true
	total := len(s.wsClients)
	s.wsClientsMu.Unlock()

	s.logf("🔌 New WebSocket connection (total: %d)", total)

	// Handle disconnection
	go func() {
		defer func() {
			s.wsClientsMu.Lock()
			delete(s.wsClients, conn)
			s.wsClientsMu.Unlock()
			conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// broadcast sends an event to all websocket subscribers
func (s *Server) broadcast(ev Event) {
	ev.Timestamp = time.Now().Format(time.RFC3339)

	// writes to a single conn must not run concurrently
	s.wsClientsMu.Lock()
	defer s.wsClientsMu.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("Failed to send to WebSocket: %v", err)
		}
	}
}
