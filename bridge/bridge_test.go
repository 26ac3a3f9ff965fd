package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/campline/campfire"
	"github.com/onnwee/campline/irc"
	"github.com/onnwee/campline/telemetry"
	"github.com/onnwee/campline/testutil"
)

// testHarness is one bridged connection against a mocked backend: the client
// end of the IRC socket, the wire lines it receives, and the speak payloads
// the backend records.
type testHarness struct {
	t      *testing.T
	client net.Conn
	lines  chan string
	speaks chan map[string]string
	bridge *Bridge
	room   *campfire.Room
	mock   *testutil.MockCampfireServer
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	telemetry.Init()

	mock := testutil.NewMockCampfireServer(t)
	lobby, err := campfire.NewLobby("acme", "token123")
	if err != nil {
		t.Fatalf("NewLobby: %v", err)
	}
	lobby.BaseURL = mock.URL
	lobby.StreamBaseURL = mock.URL

	mock.MockUser("/users/me.json", map[string]any{"id": 99, "name": "Bridge Bot"})
	mock.MockRoom("/room/5.json", map[string]any{
		"id": 5, "name": "Ops", "topic": "on call",
		"users": []map[string]any{{"id": 1, "name": "Alice"}},
	})
	mock.MockEmpty("/room/5/join.json")
	mock.MockEmpty("/room/5/leave.json")
	// The stream stays open until the bridge context ends; these tests drive
	// inbound traffic through the observer callbacks instead.
	mock.Handlers["/room/5/live.json"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}

	h := &testHarness{
		t:      t,
		lines:  make(chan string, 64),
		speaks: make(chan map[string]string, 8),
	}
	mock.Handlers["/room/5/speak.json"] = func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			h.speaks <- payload["message"]
		}
		w.WriteHeader(http.StatusCreated)
	}

	if _, err := lobby.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	room, err := lobby.Room(context.Background(), 5)
	if err != nil {
		t.Fatalf("Room: %v", err)
	}

	client, server := net.Pipe()
	conn := irc.NewConn(server, "irc.test")
	h.client = client
	h.room = room
	h.mock = mock
	h.bridge = New(context.Background(), conn, map[string]*campfire.Room{"#ops": room})
	go conn.Run()

	go func() {
		r := bufio.NewReader(client)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			h.lines <- strings.TrimRight(line, "\r\n")
		}
	}()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return h
}

func (h *testHarness) send(line string) {
	h.t.Helper()
	if _, err := h.client.Write([]byte(line + "\r\n")); err != nil {
		h.t.Fatalf("send %q: %v", line, err)
	}
}

func (h *testHarness) expect(want string) {
	h.t.Helper()
	select {
	case got := <-h.lines:
		if got != want {
			h.t.Errorf("wire line = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for %q", want)
	}
}

func (h *testHarness) expectPrefix(want string) string {
	h.t.Helper()
	select {
	case got := <-h.lines:
		if !strings.HasPrefix(got, want) {
			h.t.Errorf("wire line = %q, want prefix %q", got, want)
		}
		return got
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for prefix %q", want)
		return ""
	}
}

// register completes NICK/USER and consumes the welcome.
func (h *testHarness) register() {
	h.t.Helper()
	h.send("NICK alice")
	h.send("USER alice host server :Alice Liddell")
	h.expect(":irc.test 001 alice :Welcome to the campfire gateway")
}

// join completes the local join and consumes its output.
func (h *testHarness) join() {
	h.t.Helper()
	h.send("JOIN #ops")
	h.expect(":irc.test 332 alice #ops :on call")
	h.expect(":irc.test 353 alice @ #ops :@alice")
	h.expect(":irc.test 366 alice #ops :End of /NAMES list")
	h.expect(":alice!~alice@host JOIN :#ops")
}

func TestRegistrationOrderIndependent(t *testing.T) {
	t.Run("nick first", func(t *testing.T) {
		h := newHarness(t)
		h.register()
	})
	t.Run("user first", func(t *testing.T) {
		h := newHarness(t)
		h.send("USER bob host server :Bob")
		h.send("NICK bob")
		h.expect(":irc.test 001 bob :Welcome to the campfire gateway")
	})
}

func TestNickWithoutParam(t *testing.T) {
	h := newHarness(t)
	h.send("NICK")
	h.expect(":irc.test 431  :No nickname given")
}

func TestUserErrors(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.send("USER again host server :Again")
	h.expect(":irc.test 462 alice :You may not reregister")

	h2 := newHarness(t)
	h2.send("NICK carol")
	h2.send("USER too few")
	h2.expect(":irc.test 461 carol USER :Not enough parameters")
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.send("PING irc.test")
	h.expect("PONG :irc.test")
}

func TestJoinKnownChannel(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	if !h.bridge.Channels()[0].Joined() {
		t.Error("channel not marked joined")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	// A second JOIN produces nothing; the PONG for the follow-up PING must be
	// the very next line.
	h.send("JOIN #ops")
	h.send("PING marker")
	h.expect("PONG :marker")
}

func TestJoinUnknownChannel(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.send("JOIN #elsewhere")
	h.expect(":irc.test 403 alice #elsewhere :No such channel")
	h.expect(":irc.test 371 alice :Channels must be listed in the gateway configuration to be joinable")
}

func TestPrivmsgRequiresJoin(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.send("PRIVMSG #ops :hello")
	h.expect(":irc.test 404 alice #ops :Cannot send to channel")
	h.expect(":irc.test 371 alice :You must join the room first")
}

func TestPrivmsgForwardsText(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	h.send("PRIVMSG #ops :hello room")
	select {
	case msg := <-h.speaks:
		if msg["type"] != campfire.TextMessage || msg["body"] != "hello room" {
			t.Errorf("speak payload = %v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the backend")
	}
}

func TestPrivmsgTranslatesCTCPAction(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	h.send("PRIVMSG #ops :\x01ACTION waves\x01")
	select {
	case msg := <-h.speaks:
		if msg["body"] != "*waves*" {
			t.Errorf("action body = %q, want *waves*", msg["body"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("action never reached the backend")
	}
}

func TestTopicRequiresJoin(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.send("TOPIC #ops :new")
	h.expect(":irc.test 442 alice #ops :You're not on that channel")
	h.expect(":irc.test 371 alice :You must join the room first")
}

func TestTopicUpdatesAndAnnounces(t *testing.T) {
	h := newHarness(t)
	var topicPayload map[string]map[string]string
	h.mock.Handlers["/room/5.json"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"room":{"id":5,"name":"Ops","topic":"on call","users":[{"id":1,"name":"Alice"}]}}`))
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&topicPayload)
		w.WriteHeader(http.StatusOK)
	}
	h.register()
	h.join()
	h.send("TOPIC #ops :shipping friday")
	h.expect(":irc.test 332 alice #ops :shipping friday")
	if topicPayload["room"]["topic"] != "shipping friday" {
		t.Errorf("remote payload = %v", topicPayload)
	}
}

func TestInboundTextMessage(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	ch := h.bridge.Channels()[0]
	bob := &campfire.User{ID: 2, Name: "Bob Odenkirk"}
	ch.RoomEvent(h.room, bob, campfire.Message{ID: 70, Type: campfire.TextMessage, Body: "hi there"})
	h.expect(":bobo PRIVMSG #ops :hi there")
}

func TestInboundTextDoesNotConvertAsterisks(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	ch := h.bridge.Channels()[0]
	bob := &campfire.User{ID: 2, Name: "Bob"}
	// Asterisk-wrapped remote text stays literal; only the outbound direction
	// rewrites CTCP actions.
	ch.RoomEvent(h.room, bob, campfire.Message{Type: campfire.TextMessage, Body: "*waves*"})
	h.expect(":bob PRIVMSG #ops :*waves*")
}

func TestInboundPasteBecomesURL(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	ch := h.bridge.Channels()[0]
	bob := &campfire.User{ID: 2, Name: "Bob"}
	ch.RoomEvent(h.room, bob, campfire.Message{ID: 71, Type: campfire.PasteMessage, Body: "long paste"})
	h.expect(":bob PRIVMSG #ops :" + h.room.Lobby().BaseURL + "/room/5/paste/71")
}

func TestInboundSounds(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	ch := h.bridge.Channels()[0]
	bob := &campfire.User{ID: 2, Name: "Bob"}

	ch.RoomEvent(h.room, bob, campfire.Message{Type: campfire.SoundMessage, Body: "trombone"})
	h.expect(":bob PRIVMSG #ops :\x01ACTION plays a sad trombone\x01")

	ch.RoomEvent(h.room, bob, campfire.Message{Type: campfire.SoundMessage, Body: "vuvuzela"})
	h.expect(":bob PRIVMSG #ops :\x01ACTION plays a vuvuzela sound\x01")
}

func TestInboundRosterAnnouncements(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.join()
	ch := h.bridge.Channels()[0]
	carol := &campfire.User{ID: 3, Name: "Carol"}

	ch.UserJoined(h.room, carol)
	h.expect(":carol!~carol@localhost JOIN #ops")

	ch.UserLeft(h.room, carol)
	h.expect(":carol!~carol@localhost PART #ops :quitting")
}

func TestInboundDroppedWhenNotJoined(t *testing.T) {
	h := newHarness(t)
	h.register()
	ch := h.bridge.Channels()[0]
	bob := &campfire.User{ID: 2, Name: "Bob"}
	ch.RoomEvent(h.room, bob, campfire.Message{Type: campfire.TextMessage, Body: "unseen"})
	ch.UserJoined(h.room, bob)
	// Nothing was written; a PING marker is the next line.
	h.send("PING marker")
	h.expect("PONG :marker")
}

func TestPartClearsJoinAndLeavesRemotely(t *testing.T) {
	h := newHarness(t)
	left := make(chan struct{}, 1)
	h.mock.Handlers["/room/5/leave.json"] = func(w http.ResponseWriter, r *http.Request) {
		left <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}
	h.register()
	h.join()
	ch := h.bridge.Channels()[0]

	ch.Part()
	if ch.Joined() {
		t.Error("channel still joined after Part")
	}
	select {
	case <-left:
	case <-time.After(2 * time.Second):
		t.Fatal("remote leave never issued")
	}
	// Part on a parted channel is a no-op.
	ch.Part()
	select {
	case <-left:
		t.Error("second Part issued another remote leave")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamOutlivesFirstClient(t *testing.T) {
	telemetry.Init()
	mock := testutil.NewMockCampfireServer(t)
	lobby, err := campfire.NewLobby("acme", "token123")
	if err != nil {
		t.Fatalf("NewLobby: %v", err)
	}
	lobby.BaseURL = mock.URL
	lobby.StreamBaseURL = mock.URL

	mock.MockUser("/users/me.json", map[string]any{"id": 99, "name": "Bridge Bot"})
	mock.MockRoom("/room/5.json", map[string]any{
		"id": 5, "name": "Ops", "topic": "on call",
		"users": []map[string]any{{"id": 1, "name": "Alice"}},
	})
	mock.MockEmpty("/room/5/join.json")
	mock.MockEmpty("/room/5/leave.json")

	opens := make(chan struct{}, 4)
	mock.Handlers["/room/5/live.json"] = func(w http.ResponseWriter, r *http.Request) {
		opens <- struct{}{}
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}

	if _, err := lobby.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	room, err := lobby.Room(context.Background(), 5)
	if err != nil {
		t.Fatalf("Room: %v", err)
	}

	connect := func(nick string) (net.Conn, *Bridge) {
		t.Helper()
		client, server := net.Pipe()
		conn := irc.NewConn(server, "irc.test")
		b := New(context.Background(), conn, map[string]*campfire.Room{"#ops": room})
		go conn.Run()
		go func() { _, _ = io.Copy(io.Discard, client) }()
		t.Cleanup(func() {
			_ = client.Close()
			_ = server.Close()
		})
		for _, line := range []string{"NICK " + nick, "USER " + nick + " host server :" + nick, "JOIN #ops"} {
			if _, err := client.Write([]byte(line + "\r\n")); err != nil {
				t.Fatalf("send %q: %v", line, err)
			}
		}
		return client, b
	}

	clientA, _ := connect("alice")
	select {
	case <-opens:
	case <-time.After(2 * time.Second):
		t.Fatal("first client never opened the room stream")
	}

	_, bridgeB := connect("bob")
	deadline := time.Now().Add(2 * time.Second)
	for !bridgeB.Channels()[0].Joined() {
		if time.Now().After(deadline) {
			t.Fatal("second client never joined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The first client goes away; its context cancellation releases the
	// stream claim and the surviving connection must reopen the stream.
	clientA.Close()
	select {
	case <-opens:
	case <-time.After(2 * time.Second):
		t.Fatal("room stream never reopened for the still-joined client")
	}
	if !bridgeB.Channels()[0].Joined() {
		t.Error("surviving client lost its join state")
	}
}

func TestUnknownCommandSilentlyDropped(t *testing.T) {
	h := newHarness(t)
	h.register()
	h.send("WHOIS alice")
	h.send("PING marker")
	h.expect("PONG :marker")
}
