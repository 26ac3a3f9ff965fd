// Package testutil holds httptest-backed fakes shared by the package tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockCampfireServer mocks the chat service's HTTP/JSON API with per-path
// handlers. Unhandled paths return 404.
type MockCampfireServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockCampfireServer creates a new mock API server.
func NewMockCampfireServer(t *testing.T) *MockCampfireServer {
	t.Helper()
	m := &MockCampfireServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockJSON registers a handler returning the given value as JSON.
func (m *MockCampfireServer) MockJSON(path string, v any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}

// MockRooms registers the room listing.
func (m *MockCampfireServer) MockRooms(rooms []map[string]any) {
	m.MockJSON("/rooms.json", map[string]any{"rooms": rooms})
}

// MockRoom registers a single room resource at /room/<id>.json.
func (m *MockCampfireServer) MockRoom(path string, room map[string]any) {
	m.MockJSON(path, map[string]any{"room": room})
}

// MockUser registers a user resource at /users/<id>.json.
func (m *MockCampfireServer) MockUser(path string, user map[string]any) {
	m.MockJSON(path, map[string]any{"user": user})
}

// MockEmpty registers a handler returning 200 with no body, the shape of the
// membership POST endpoints.
func (m *MockCampfireServer) MockEmpty(path string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
