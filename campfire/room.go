package campfire

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Message kinds the service streams and accepts. SoundMessage bodies name a
// sound ("crickets", "trombone", ...); TopicChangeMessage bodies carry the
// new topic.
const (
	TextMessage           = "TextMessage"
	PasteMessage          = "PasteMessage"
	SoundMessage          = "SoundMessage"
	TweetMessage          = "TweetMessage"
	TopicChangeMessage    = "TopicChangeMessage"
	EnterMessage          = "EnterMessage"
	KickMessage           = "KickMessage"
	LeaveMessage          = "LeaveMessage"
	AllowGuestsMessage    = "AllowGuestsMessage"
	DisallowGuestsMessage = "DisallowGuestsMessage"
	LockMessage           = "LockMessage"
	UnlockMessage         = "UnlockMessage"
	IdleMessage           = "IdleMessage"
	UnidleMessage         = "UnidleMessage"
	UploadMessage         = "UploadMessage"
)

// speakKinds maps the accepted speak kind spellings (lower-cased) to the wire
// type. Both the short form and the full "...Message" form are valid.
var speakKinds = map[string]string{
	"text":         TextMessage,
	"textmessage":  TextMessage,
	"paste":        PasteMessage,
	"pastemessage": PasteMessage,
	"sound":        SoundMessage,
	"soundmessage": SoundMessage,
	"tweet":        TweetMessage,
	"tweetmessage": TweetMessage,
}

// NormalizeSpeakKind validates a speak kind and returns its wire spelling.
// Unknown kinds fail here, before any network call.
func NormalizeSpeakKind(kind string) (string, error) {
	wire, ok := speakKinds[strings.ToLower(kind)]
	if !ok {
		return "", fmt.Errorf(`campfire: kind must be "text", "paste", "sound", or "tweet", got %q`, kind)
	}
	return wire, nil
}

// RoomObserver is the fixed set of room transitions a bound channel consumes.
// Each observer is registered explicitly; rooms do not expose an open-ended
// event emitter.
type RoomObserver interface {
	// UserJoined fires when a user enters the room, after the roster has
	// been updated.
	UserJoined(room *Room, user *User)
	// UserLeft fires when a user leaves or is kicked, after removal from
	// the roster.
	UserLeft(room *Room, user *User)
	// RoomEvent delivers every other streamed record, with the sending
	// user already resolved (nil when the record carries no user id).
	// Topic changes have been mirrored into the room before delivery.
	RoomEvent(room *Room, user *User, msg Message)
}

// roomData is the JSON shape of a room resource.
type roomData struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Topic string `json:"topic"`
	Users []User `json:"users"`
}

// Room is one remote room: roster, topic, membership operations, and the
// owner of at most one active streaming read. Rooms live in the lobby cache
// and may be shared by several channels; all of them observe the same roster
// by reference.
type Room struct {
	ID   int64
	Name string

	lobby *Lobby

	mu        sync.Mutex
	topic     string
	users     map[int64]*User
	observers []RoomObserver

	// Stream claim. At most one Listen runs per room; waiters can block on
	// streamFree to take the claim over when the holder releases it.
	streamMu   sync.Mutex
	streamHeld bool
	streamFree chan struct{}
}

func newRoom(l *Lobby, data roomData) *Room {
	r := &Room{
		ID:    data.ID,
		Name:  data.Name,
		lobby: l,
		topic: data.Topic,
		users: make(map[int64]*User, len(data.Users)),
	}
	for i := range data.Users {
		u := data.Users[i]
		r.users[u.ID] = &u
		l.mu.Lock()
		l.users[u.ID] = &u
		l.mu.Unlock()
	}
	return r
}

// Lobby returns the owning client.
func (r *Room) Lobby() *Lobby { return r.lobby }

// Topic returns the current locally-mirrored topic.
func (r *Room) Topic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topic
}

func (r *Room) setTopic(topic string) {
	r.mu.Lock()
	r.topic = topic
	r.mu.Unlock()
}

// Users snapshots the roster.
func (r *Room) Users() []*User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

// UserByID returns the roster entry for id, or nil.
func (r *Room) UserByID(id int64) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

// AddObserver registers a channel for roster and message notifications.
func (r *Room) AddObserver(o RoomObserver) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

func (r *Room) snapshotObservers() []RoomObserver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RoomObserver(nil), r.observers...)
}

func (r *Room) path(suffix string) string {
	if suffix == "" {
		return fmt.Sprintf("/room/%d.json", r.ID)
	}
	return fmt.Sprintf("/room/%d/%s.json", r.ID, suffix)
}

// Join enters the room remotely. Membership operations POST with an empty
// body and report failure to the caller; nothing is retried.
func (r *Room) Join(ctx context.Context) error {
	return r.lobby.request(ctx, http.MethodPost, r.path("join"), nil, nil)
}

// Leave exits the room remotely.
func (r *Room) Leave(ctx context.Context) error {
	return r.lobby.request(ctx, http.MethodPost, r.path("leave"), nil, nil)
}

// Lock locks the room.
func (r *Room) Lock(ctx context.Context) error {
	return r.lobby.request(ctx, http.MethodPost, r.path("lock"), nil, nil)
}

// Unlock unlocks the room.
func (r *Room) Unlock(ctx context.Context) error {
	return r.lobby.request(ctx, http.MethodPost, r.path("unlock"), nil, nil)
}

// Speak posts one message. The kind is validated synchronously; "text" and
// "TextMessage" produce identical wire payloads.
func (r *Room) Speak(ctx context.Context, kind, body string) error {
	wireKind, err := NormalizeSpeakKind(kind)
	if err != nil {
		return err
	}
	payload := map[string]any{
		"message": map[string]string{
			"type": wireKind,
			"body": body,
		},
	}
	return r.lobby.request(ctx, http.MethodPost, r.path("speak"), payload, nil)
}

// SetTopic updates the room topic remotely (PUT) and mirrors it locally.
func (r *Room) SetTopic(ctx context.Context, topic string) error {
	payload := map[string]any{
		"room": map[string]string{"topic": topic},
	}
	if err := r.lobby.request(ctx, http.MethodPut, r.path(""), payload, nil); err != nil {
		return err
	}
	r.setTopic(topic)
	return nil
}

// addUser inserts u into the roster. Reports whether it was new.
func (r *Room) addUser(u *User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.users[u.ID]
	r.users[u.ID] = u
	return !known
}

// removeUser drops id from the roster, returning the entry if present.
func (r *Room) removeUser(id int64) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[id]
	delete(r.users, id)
	return u
}
