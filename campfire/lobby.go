// Package campfire is an authenticated HTTP/JSON client for one subdomain of
// a Campfire-style group-chat service: room and user lookup with caching,
// typed room operations, and the long-lived streaming read.
package campfire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/campline/telemetry"
)

// ErrRoomNotFound is the "no such room" result from RoomByName. It is a
// lookup outcome, not a transport failure.
var ErrRoomNotFound = fmt.Errorf("campfire: room not found")

// APIError is a non-2xx response, carrying the raw body for the caller.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("campfire: http %d: %s", e.StatusCode, e.Body)
}

// DecodeError is a response body that failed to decode as JSON. The raw body
// is surfaced rather than hidden.
type DecodeError struct {
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("campfire: decode: %v (body %q)", e.Err, e.Body)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// User is one account on the service.
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email_address,omitempty"`
	Admin        bool   `json:"admin,omitempty"`
	Type         string `json:"type,omitempty"`
}

// Lobby is the client for one subdomain. Its room and user caches are shared
// across every connection bridged through this process and are never
// invalidated, so access is mutex-guarded.
type Lobby struct {
	Subdomain string

	// BaseURL and StreamBaseURL default to the public hosts and exist so
	// tests can point the client at a local server.
	BaseURL       string
	StreamBaseURL string
	HTTPClient    *http.Client
	StreamClient  *http.Client

	token string

	mu    sync.Mutex
	rooms map[int64]*Room
	users map[int64]*User
	me    *User
}

// NewLobby builds the client for one subdomain, holding the static API token
// sent with every request.
func NewLobby(subdomain, token string) (*Lobby, error) {
	if subdomain == "" {
		return nil, fmt.Errorf("campfire: subdomain required")
	}
	if token == "" {
		return nil, fmt.Errorf("campfire: token required")
	}
	return &Lobby{
		Subdomain:     subdomain,
		BaseURL:       fmt.Sprintf("https://%s.campfirenow.com", subdomain),
		StreamBaseURL: "https://streaming.campfirenow.com",
		token:         token,
		rooms:         make(map[int64]*Room),
		users:         make(map[int64]*User),
	}, nil
}

func (l *Lobby) http() *http.Client {
	if l.HTTPClient != nil {
		return l.HTTPClient
	}
	return http.DefaultClient
}

// streamHTTP is the client for the kept-open streaming GET. It must not carry
// a request timeout; the server holds the body open indefinitely.
func (l *Lobby) streamHTTP() *http.Client {
	if l.StreamClient != nil {
		return l.StreamClient
	}
	return &http.Client{Timeout: 0}
}

// authorize sets the Basic-Auth-style token header used on every request,
// including the streaming read.
func (l *Lobby) authorize(req *http.Request) {
	req.SetBasicAuth(l.token, "x")
	req.Header.Set("Content-Type", "application/json")
}

// request issues one HTTP call and decodes a non-empty response body as JSON
// into out. An empty body with a 2xx status is "no data" and decodes to
// nothing. Decode failures surface the raw body alongside the error.
func (l *Lobby) request(ctx context.Context, method, path string, body, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "campfire", method+" "+path,
		attribute.String("campfire.subdomain", l.Subdomain),
	)
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("campfire: encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("campfire: build request: %w", err)
	}
	l.authorize(req)

	start := time.Now()
	resp, err := l.http().Do(req)
	telemetry.ObserveAPIRequest(method, time.Since(start), err == nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("campfire: %s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("campfire: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: raw}
		telemetry.RecordError(span, apiErr)
		return apiErr
	}
	if len(bytes.TrimSpace(raw)) == 0 || out == nil {
		telemetry.SetSpanSuccess(span)
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		decErr := &DecodeError{Body: raw, Err: err}
		telemetry.RecordError(span, decErr)
		return decErr
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

// Rooms fetches all visible rooms. The listing is never cached; Room is.
func (l *Lobby) Rooms(ctx context.Context) ([]*Room, error) {
	var payload struct {
		Rooms []roomData `json:"rooms"`
	}
	if err := l.request(ctx, http.MethodGet, "/rooms.json", nil, &payload); err != nil {
		return nil, err
	}
	rooms := make([]*Room, 0, len(payload.Rooms))
	for _, data := range payload.Rooms {
		rooms = append(rooms, newRoom(l, data))
	}
	return rooms, nil
}

// Room resolves a room by id, cache first. A miss fetches, inserts (last
// write wins), and returns the cached instance from then on.
func (l *Lobby) Room(ctx context.Context, id int64) (*Room, error) {
	l.mu.Lock()
	if room, ok := l.rooms[id]; ok {
		l.mu.Unlock()
		return room, nil
	}
	l.mu.Unlock()

	var payload struct {
		Room roomData `json:"room"`
	}
	if err := l.request(ctx, http.MethodGet, fmt.Sprintf("/room/%d.json", id), nil, &payload); err != nil {
		return nil, err
	}
	room := newRoom(l, payload.Room)
	l.mu.Lock()
	l.rooms[room.ID] = room
	l.mu.Unlock()
	return room, nil
}

// RoomByName lists all rooms and resolves the first one whose name matches,
// in the order the service returned them. No match is ErrRoomNotFound.
func (l *Lobby) RoomByName(ctx context.Context, name string) (*Room, error) {
	rooms, err := l.Rooms(ctx)
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		if room.Name == name {
			return l.Room(ctx, room.ID)
		}
	}
	return nil, ErrRoomNotFound
}

// User resolves a user by id, cache first, with last-write-wins insertion.
func (l *Lobby) User(ctx context.Context, id int64) (*User, error) {
	l.mu.Lock()
	if user, ok := l.users[id]; ok {
		l.mu.Unlock()
		return user, nil
	}
	l.mu.Unlock()

	user, err := l.fetchUser(ctx, fmt.Sprintf("%d", id))
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.users[user.ID] = user
	l.mu.Unlock()
	return user, nil
}

// Me resolves the authenticated identity via the "me" alias. The result is
// cached both under the alias and under the user's real id, so later lookups
// by id hit the cache too.
func (l *Lobby) Me(ctx context.Context) (*User, error) {
	l.mu.Lock()
	if l.me != nil {
		me := l.me
		l.mu.Unlock()
		return me, nil
	}
	l.mu.Unlock()

	user, err := l.fetchUser(ctx, "me")
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.me = user
	l.users[user.ID] = user
	l.mu.Unlock()
	return user, nil
}

// CachedMe returns the identity resolved by Me, or nil if Me has not
// succeeded yet.
func (l *Lobby) CachedMe() *User {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.me
}

func (l *Lobby) fetchUser(ctx context.Context, id string) (*User, error) {
	var payload struct {
		User User `json:"user"`
	}
	if err := l.request(ctx, http.MethodGet, fmt.Sprintf("/users/%s.json", id), nil, &payload); err != nil {
		return nil, err
	}
	user := payload.User
	return &user, nil
}
