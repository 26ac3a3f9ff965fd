package campfire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/campline/telemetry"
)

// ErrAlreadyStreaming means a second streaming read was attempted against a
// room that already has its one allowed stream open.
var ErrAlreadyStreaming = fmt.Errorf("campfire: room already has an active stream")

// Message is one record from the streaming read.
type Message struct {
	ID        int64  `json:"id"`
	RoomID    int64  `json:"room_id"`
	UserID    int64  `json:"user_id"`
	Type      string `json:"type"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// StreamHooks reports stream-local failures. Per-record decode errors and
// user-resolution errors go through OnError and never abort the stream.
type StreamHooks struct {
	OnError func(err error)
}

func (h StreamHooks) errorf(format string, args ...any) {
	if h.OnError != nil {
		h.OnError(fmt.Errorf(format, args...))
	}
}

// Listen opens the kept-open streaming GET against the dedicated streaming
// host, reusing the lobby's auth header, and dispatches each record to the
// room's observers in network-arrival order. Records are separated by
// carriage returns and decoded independently; a record that fails to decode
// is reported and skipped without aborting later records.
//
// A nil return means the server completed the response body normally, which
// is how the long-poll endpoint rotates connections; callers restart on nil.
// A non-nil return is a genuine failure and is never retried here: restart
// policy belongs entirely to the caller.
//
// Sending users are resolved (cache first, one fetch on a miss) inside this
// loop, so delivery stays in strict stream order per room.
func (r *Room) Listen(ctx context.Context, hooks StreamHooks) error {
	if !r.claimStream() {
		return ErrAlreadyStreaming
	}
	defer r.releaseStream()

	url := fmt.Sprintf("%s/room/%d/live.json", r.lobby.StreamBaseURL, r.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("campfire: build stream request: %w", err)
	}
	r.lobby.authorize(req)

	resp, err := r.lobby.streamHTTP().Do(req)
	if err != nil {
		return fmt.Errorf("campfire: open stream: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Debug("stream body close", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: raw}
	}
	telemetry.StreamsActive.Inc()
	defer telemetry.StreamsActive.Dec()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitRecords)
	for scanner.Scan() {
		record := strings.TrimSpace(scanner.Text())
		if record == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(record), &msg); err != nil {
			telemetry.StreamDecodeErrors.Inc()
			hooks.errorf("campfire: decode stream record %q: %w", record, err)
			continue
		}
		r.dispatch(ctx, msg, hooks)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("campfire: stream read: %w", err)
	}
	// Clean end of body: server-initiated long-poll rotation, not a failure.
	return nil
}

func (r *Room) claimStream() bool {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()
	if r.streamHeld {
		return false
	}
	r.streamHeld = true
	r.streamFree = make(chan struct{})
	return true
}

func (r *Room) releaseStream() {
	r.streamMu.Lock()
	r.streamHeld = false
	close(r.streamFree)
	r.streamMu.Unlock()
}

// AwaitStreamRelease blocks until the current stream holder releases its
// claim, or ctx ends. It returns immediately when no stream is held. The
// room outlives any one connection, so a caller that lost the claim race can
// wait here and take the stream over when its holder goes away.
func (r *Room) AwaitStreamRelease(ctx context.Context) error {
	r.streamMu.Lock()
	if !r.streamHeld {
		r.streamMu.Unlock()
		return nil
	}
	free := r.streamFree
	r.streamMu.Unlock()
	select {
	case <-free:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// splitRecords tokenizes the stream body on carriage returns.
func splitRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if idx := bytes.IndexByte(data, '\r'); idx >= 0 {
		return idx + 1, data[:idx], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	if atEOF {
		return 0, nil, io.EOF
	}
	return 0, nil, nil
}

// dispatch routes one decoded record. Records from the bridge's own identity
// are discarded, except a kick naming ourselves, which re-issues the remote
// join so the bridge heals after being kicked.
func (r *Room) dispatch(ctx context.Context, msg Message, hooks StreamHooks) {
	if me := r.lobby.CachedMe(); me != nil && msg.UserID == me.ID {
		if msg.Type == KickMessage {
			if err := r.Join(ctx); err != nil {
				hooks.errorf("campfire: rejoin after kick: %w", err)
			}
		}
		return
	}

	switch msg.Type {
	case EnterMessage:
		// A repeated enter for someone already on the roster is not news.
		// The check must precede resolution, which inserts on a roster miss.
		if r.UserByID(msg.UserID) != nil {
			return
		}
		user, err := r.resolveUser(ctx, msg.UserID)
		if err != nil {
			hooks.errorf("campfire: resolve entering user %d: %w", msg.UserID, err)
			return
		}
		if user == nil {
			return
		}
		r.addUser(user)
		for _, o := range r.snapshotObservers() {
			o.UserJoined(r, user)
		}

	case LeaveMessage, KickMessage:
		user := r.removeUser(msg.UserID)
		if user == nil {
			return
		}
		for _, o := range r.snapshotObservers() {
			o.UserLeft(r, user)
		}

	default:
		if msg.Type == TopicChangeMessage {
			r.setTopic(msg.Body)
		}
		user, err := r.resolveUser(ctx, msg.UserID)
		if err != nil {
			hooks.errorf("campfire: resolve user %d: %w", msg.UserID, err)
			return
		}
		telemetry.MessagesInbound.Inc()
		for _, o := range r.snapshotObservers() {
			o.RoomEvent(r, user, msg)
		}
	}
}

// resolveUser looks the sender up in the roster first, then through the
// lobby's cache-first fetch. A record with no user id resolves to nil.
func (r *Room) resolveUser(ctx context.Context, id int64) (*User, error) {
	if id == 0 {
		return nil, nil
	}
	if u := r.UserByID(id); u != nil {
		return u, nil
	}
	u, err := r.lobby.User(ctx, id)
	if err != nil {
		return nil, err
	}
	r.addUser(u)
	return u, nil
}
