// Package fgatest provides an in-memory stand-in for an OpenFGA-compatible
// service, used by the client tests. It implements the store, model, tuple
// and query endpoints including real continuation-token pagination, and
// records every request so tests can assert on request counts.
package fgatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/trevex/ofga"
)

// DefaultPageSize matches the reference service's maximum page size.
const DefaultPageSize = 100

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
}

type storeState struct {
	store  ofga.Store
	models []ofga.AuthorizationModel // newest first
	tuples []ofga.Tuple
}

// Server fakes the FGA HTTP API on top of httptest.
type Server struct {
	// PageSize bounds every paginated response. Set it before issuing
	// requests.
	PageSize int

	mu     sync.Mutex
	stores map[string]*storeState
	// creation order, so paginated listings stay stable across requests
	order []string
	calls []Call

	httpSrv *httptest.Server
}

func New() *Server {
	s := &Server{
		PageSize: DefaultPageSize,
		stores:   map[string]*storeState{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /stores", s.createStore)
	mux.HandleFunc("GET /stores", s.listStores)
	mux.HandleFunc("GET /stores/{storeID}", s.getStore)
	mux.HandleFunc("DELETE /stores/{storeID}", s.deleteStore)
	mux.HandleFunc("GET /stores/{storeID}/authorization-models", s.listModels)
	mux.HandleFunc("POST /stores/{storeID}/authorization-models", s.createModel)
	mux.HandleFunc("GET /stores/{storeID}/authorization-models/{modelID}", s.getModel)
	mux.HandleFunc("POST /stores/{storeID}/write", s.write)
	mux.HandleFunc("POST /stores/{storeID}/read", s.read)
	mux.HandleFunc("POST /stores/{storeID}/check", s.check)
	mux.HandleFunc("POST /stores/{storeID}/list-objects", s.listObjects)
	mux.HandleFunc("POST /stores/{storeID}/list-users", s.listUsers)
	s.httpSrv = httptest.NewServer(s.record(mux))
	return s
}

func (s *Server) URL() string {
	return s.httpSrv.URL
}

func (s *Server) Close() {
	s.httpSrv.Close()
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Calls returns how many requests hit the given method and path suffix.
func (s *Server) Calls(method, pathSuffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && strings.HasSuffix(c.Path, pathSuffix) {
			n++
		}
	}
	return n
}

// ResetCalls clears the request log, typically after seeding fixtures.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// SeedStore creates a store with one model directly, bypassing the API.
func (s *Server) SeedStore(name string) (storeID, modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &storeState{
		store: ofga.Store{ID: newID(), Name: name, CreatedAt: time.Now().UTC()},
	}
	st.models = []ofga.AuthorizationModel{{ID: newID(), SchemaVersion: "1.1"}}
	s.stores[st.store.ID] = st
	s.order = append(s.order, st.store.ID)
	return st.store.ID, st.models[0].ID
}

// SeedTuples inserts tuples directly, bypassing the API.
func (s *Server) SeedTuples(storeID string, keys ...ofga.TupleKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stores[storeID]
	for _, key := range keys {
		st.tuples = append(st.tuples, ofga.Tuple{Key: key, Timestamp: time.Now().UTC()})
	}
}

// TupleCount reports how many tuples a store currently holds.
func (s *Server) TupleCount(storeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stores[storeID].tuples)
}

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// paginateSlice applies the offset-encoded continuation token protocol to a
// full result set and returns the page plus the next token ("" on the final
// page).
func paginateSlice[T any](items []T, token string, pageSize int) ([]T, string, error) {
	offset := 0
	if token != "" {
		var err error
		offset, err = strconv.Atoi(token)
		if err != nil || offset < 0 || offset > len(items) {
			return nil, "", fmt.Errorf("invalid continuation token %q", token)
		}
	}
	end := offset + pageSize
	if end >= len(items) {
		return items[offset:], "", nil
	}
	return items[offset:end], strconv.Itoa(end), nil
}

func (s *Server) createStore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &storeState{
		store: ofga.Store{ID: newID(), Name: body.Name, CreatedAt: time.Now().UTC()},
	}
	s.stores[st.store.ID] = st
	s.order = append(s.order, st.store.ID)
	writeJSON(w, http.StatusCreated, st.store)
}

func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	s.mu.Lock()
	defer s.mu.Unlock()
	stores := []ofga.Store{}
	for _, id := range s.order {
		if st := s.stores[id]; name == "" || st.store.Name == name {
			stores = append(stores, st.store)
		}
	}
	page, next, err := paginateSlice(stores, r.URL.Query().Get("continuation_token"), s.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_continuation_token", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stores":             page,
		"continuation_token": next,
	})
}

func (s *Server) getStore(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[r.PathValue("storeID")]
	if !ok {
		writeError(w, http.StatusNotFound, "store_id_not_found", "store not found")
		return
	}
	writeJSON(w, http.StatusOK, st.store)
}

func (s *Server) deleteStore(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("storeID")
	if _, ok := s.stores[id]; !ok {
		writeError(w, http.StatusNotFound, "store_id_not_found", "store not found")
		return
	}
	delete(s.stores, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) withStore(w http.ResponseWriter, r *http.Request) *storeState {
	st, ok := s.stores[r.PathValue("storeID")]
	if !ok {
		writeError(w, http.StatusNotFound, "store_id_not_found", "store not found")
		return nil
	}
	return st
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	page, next, err := paginateSlice(st.models, r.URL.Query().Get("continuation_token"), s.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_continuation_token", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authorization_models": page,
		"continuation_token":   next,
	})
}

func (s *Server) createModel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	var model ofga.AuthorizationModel
	if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid model schema")
		return
	}
	model.ID = newID()
	// newest-first listing order
	st.models = append([]ofga.AuthorizationModel{model}, st.models...)
	writeJSON(w, http.StatusCreated, map[string]string{"authorization_model_id": model.ID})
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	for _, m := range st.models {
		if m.ID == r.PathValue("modelID") {
			writeJSON(w, http.StatusOK, map[string]any{"authorization_model": m})
			return
		}
	}
	writeError(w, http.StatusNotFound, "authorization_model_not_found", "model not found")
}

type tupleKeys struct {
	TupleKeys []ofga.TupleKey `json:"tuple_keys"`
	// on_duplicate for writes, on_missing for deletes
	OnDuplicate string `json:"on_duplicate"`
	OnMissing   string `json:"on_missing"`
}

func (s *Server) write(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	var body struct {
		Writes               *tupleKeys `json:"writes"`
		Deletes              *tupleKeys `json:"deletes"`
		AuthorizationModelID string     `json:"authorization_model_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid write request")
		return
	}
	if body.AuthorizationModelID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "authorization_model_id is required")
		return
	}
	size := 0
	if body.Writes != nil {
		size += len(body.Writes.TupleKeys)
	}
	if body.Deletes != nil {
		size += len(body.Deletes.TupleKeys)
	}
	if size == 0 || size > DefaultPageSize {
		writeError(w, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("a write request must carry between 1 and %d tuple keys, got %d", DefaultPageSize, size))
		return
	}
	if body.Deletes != nil {
		for _, key := range body.Deletes.TupleKeys {
			idx := indexOfTuple(st.tuples, key)
			if idx < 0 {
				if body.Deletes.OnMissing == "error" {
					writeError(w, http.StatusBadRequest, "write_failed_due_to_invalid_input",
						fmt.Sprintf("cannot delete a tuple which does not exist: %v", key))
					return
				}
				continue
			}
			st.tuples = append(st.tuples[:idx], st.tuples[idx+1:]...)
		}
	}
	if body.Writes != nil {
		for _, key := range body.Writes.TupleKeys {
			if indexOfTuple(st.tuples, key) >= 0 {
				if body.Writes.OnDuplicate == "error" {
					writeError(w, http.StatusBadRequest, "write_failed_due_to_invalid_input",
						fmt.Sprintf("cannot write a tuple which already exists: %v", key))
					return
				}
				continue
			}
			st.tuples = append(st.tuples, ofga.Tuple{Key: key, Timestamp: time.Now().UTC()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func indexOfTuple(tuples []ofga.Tuple, key ofga.TupleKey) int {
	for i, t := range tuples {
		if t.Key == key {
			return i
		}
	}
	return -1
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	var body struct {
		TupleKey          *ofga.TupleKey `json:"tuple_key"`
		ContinuationToken string         `json:"continuation_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid read request")
		return
	}
	matched := []ofga.Tuple{}
	for _, t := range st.tuples {
		if body.TupleKey != nil {
			if body.TupleKey.User != "" && t.Key.User != body.TupleKey.User {
				continue
			}
			if body.TupleKey.Relation != "" && t.Key.Relation != body.TupleKey.Relation {
				continue
			}
			if body.TupleKey.Object != "" && t.Key.Object != body.TupleKey.Object {
				continue
			}
		}
		matched = append(matched, t)
	}
	page, next, err := paginateSlice(matched, body.ContinuationToken, s.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_continuation_token", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tuples":             page,
		"continuation_token": next,
	})
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	var body struct {
		TupleKey             ofga.TupleKey `json:"tuple_key"`
		AuthorizationModelID string        `json:"authorization_model_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid check request")
		return
	}
	// Direct match only; the fake does not evaluate the model.
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed": indexOfTuple(st.tuples, body.TupleKey) >= 0,
	})
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	var body struct {
		User              string `json:"user"`
		Relation          string `json:"relation"`
		Type              string `json:"type"`
		ContinuationToken string `json:"continuation_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid list-objects request")
		return
	}
	objects := []string{}
	for _, t := range st.tuples {
		if t.Key.User == body.User && t.Key.Relation == body.Relation && strings.HasPrefix(t.Key.Object, body.Type+":") {
			objects = append(objects, t.Key.Object)
		}
	}
	page, next, err := paginateSlice(objects, body.ContinuationToken, s.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_continuation_token", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"objects":            page,
		"continuation_token": next,
	})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.withStore(w, r)
	if st == nil {
		return
	}
	var body struct {
		Object struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"object"`
		Relation          string `json:"relation"`
		ContinuationToken string `json:"continuation_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid list-users request")
		return
	}
	object := body.Object.Type + ":" + body.Object.ID
	users := []string{}
	for _, t := range st.tuples {
		if t.Key.Object == object && t.Key.Relation == body.Relation {
			users = append(users, t.Key.User)
		}
	}
	page, next, err := paginateSlice(users, body.ContinuationToken, s.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_continuation_token", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users":              page,
		"continuation_token": next,
	})
}
