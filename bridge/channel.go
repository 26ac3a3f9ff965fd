package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/onnwee/campline/campfire"
	"github.com/onnwee/campline/irc"
	"github.com/onnwee/campline/telemetry"
)

// actionPattern matches a CTCP ACTION payload: \x01ACTION text\x01.
var actionPattern = regexp.MustCompile(`^\x01ACTION (.+)\x01$`)

// soundActions is the emote vocabulary for known sound names; anything else
// falls back to a generic phrase.
var soundActions = map[string]string{
	"crickets": "hears crickets chirping",
	"trombone": "plays a sad trombone",
	"rimshot":  "plays a rimshot",
}

// Channel binds one IRC channel name to one remote room and translates
// between them. Local join state is synchronous and always succeeds; the
// remote join runs asynchronously and may fail, and the two are tracked
// independently so client-visible responsiveness never waits on the backend.
type Channel struct {
	Name string

	bridge *Bridge
	room   *campfire.Room

	mu     sync.Mutex
	joined bool
	users  map[int64]*channelUser
}

func newChannel(b *Bridge, name string, room *campfire.Room) *Channel {
	ch := &Channel{
		Name:   name,
		bridge: b,
		room:   room,
		users:  make(map[int64]*channelUser),
	}
	// Mirror everyone already in the room, then track changes.
	for _, u := range room.Users() {
		ch.users[u.ID] = newChannelUser(u)
	}
	room.AddObserver(ch)
	return ch
}

// Room returns the bound remote room.
func (ch *Channel) Room() *campfire.Room { return ch.room }

// Joined reports the local join state.
func (ch *Channel) Joined() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.joined
}

// me is the bridge's own identity in this channel's lobby, nil until the
// bootstrap has resolved it.
func (ch *Channel) me() *campfire.User {
	return ch.room.Lobby().CachedMe()
}

// Join performs the local half of the join immediately: topic reply, name
// list, and a wire JOIN attributed to the client. The remote join and the
// stream start follow asynchronously. Calling Join on a joined channel is a
// no-op, so no duplicate JOIN/NAMES output is ever produced.
func (ch *Channel) Join() {
	ch.mu.Lock()
	if ch.joined {
		ch.mu.Unlock()
		return
	}
	ch.joined = true
	ch.mu.Unlock()

	ch.writeTopic()
	ch.writeNames()
	ch.write(ch.bridge.conn.Hostmask(), "JOIN", ":"+ch.Name)

	go ch.remoteJoin()
}

// Part clears the local join state and issues the remote leave
// asynchronously, mirroring Join's two-phase split.
func (ch *Channel) Part() {
	ch.mu.Lock()
	if !ch.joined {
		ch.mu.Unlock()
		return
	}
	ch.joined = false
	ch.mu.Unlock()

	go func() {
		if err := ch.room.Leave(ch.bridge.ctx); err != nil {
			ch.logger().Warn("remote leave failed", slog.Any("err", err))
		}
	}()
}

// remoteJoin enters the remote room and, only once that confirms, starts the
// streaming read.
func (ch *Channel) remoteJoin() {
	if err := ch.room.Join(ch.bridge.ctx); err != nil {
		ch.logger().Error("remote join failed", slog.Any("err", err))
		ch.notice(fmt.Sprintf("joining %s on the backend failed: %v", ch.Name, err))
		return
	}
	go ch.streamLoop()
}

// streamLoop drives the room's streaming read. A clean end of body is the
// server rotating its long poll and is restarted immediately; a hard error
// stops the stream and is surfaced to the client rather than retried. When
// another connection already holds the room's stream, this loop waits for
// the claim to free up and takes it over, so the shared stream outlives the
// connection that first opened it.
func (ch *Channel) streamLoop() {
	hooks := campfire.StreamHooks{
		OnError: func(err error) {
			ch.logger().Warn("stream record error", slog.Any("err", err))
		},
	}
	for {
		err := ch.room.Listen(ch.bridge.ctx, hooks)
		if ch.bridge.ctx.Err() != nil {
			return
		}
		if !ch.Joined() {
			return
		}
		if errors.Is(err, campfire.ErrAlreadyStreaming) {
			if ch.room.AwaitStreamRelease(ch.bridge.ctx) != nil {
				return
			}
			ch.logger().Debug("stream claim released, taking over")
			continue
		}
		if err != nil {
			telemetry.StreamFailures.Inc()
			ch.logger().Error("stream failed", slog.Any("err", err))
			ch.notice(fmt.Sprintf("lost the backend stream for %s: %v", ch.Name, err))
			return
		}
		telemetry.StreamRestarts.Inc()
		ch.logger().Debug("stream rotated, restarting")
	}
}

// Privmsg forwards one client message to the room. A CTCP ACTION payload is
// sent as a plain message with the action text wrapped in asterisks; the
// reverse direction never converts asterisks back (deliberately asymmetric).
func (ch *Channel) Privmsg(body string) {
	if m := actionPattern.FindStringSubmatch(body); m != nil {
		body = "*" + m[1] + "*"
	}
	telemetry.MessagesOutbound.Inc()
	if err := ch.room.Speak(ch.bridge.ctx, "TextMessage", body); err != nil {
		ch.logger().Error("speak failed", slog.Any("err", err))
		ch.notice(fmt.Sprintf("delivering to %s failed: %v", ch.Name, err))
	}
}

// Topic updates the remote room's topic, mirrors it locally, and re-announces
// it to the client.
func (ch *Channel) Topic(topic string) {
	if err := ch.room.SetTopic(ch.bridge.ctx, topic); err != nil {
		ch.logger().Error("topic update failed", slog.Any("err", err))
		ch.notice(fmt.Sprintf("setting the topic of %s failed: %v", ch.Name, err))
		return
	}
	ch.writeTopic()
}

// UserJoined mirrors a room-level join and, when the channel is joined,
// announces it on the wire.
func (ch *Channel) UserJoined(_ *campfire.Room, user *campfire.User) {
	cu := newChannelUser(user)
	ch.mu.Lock()
	ch.users[user.ID] = cu
	joined := ch.joined
	ch.mu.Unlock()
	if joined {
		ch.write(cu.Hostmask, "JOIN", ch.Name)
	}
}

// UserLeft drops the mirror entry and announces the part.
func (ch *Channel) UserLeft(_ *campfire.Room, user *campfire.User) {
	ch.mu.Lock()
	cu := ch.users[user.ID]
	delete(ch.users, user.ID)
	joined := ch.joined
	ch.mu.Unlock()
	if cu == nil {
		cu = newChannelUser(user)
	}
	if joined {
		ch.write(cu.Hostmask, "PART", ch.Name, ":quitting")
	}
}

// RoomEvent translates one streamed record into IRC wire output.
func (ch *Channel) RoomEvent(room *campfire.Room, user *campfire.User, msg campfire.Message) {
	if !ch.Joined() {
		return
	}
	nick := ""
	if user != nil {
		ch.rememberUser(user)
		nick = DeriveNick(user.Name)
	}

	switch msg.Type {
	case campfire.TextMessage:
		ch.write(nick, "PRIVMSG", ch.Name, ":"+msg.Body)

	case campfire.PasteMessage:
		url := fmt.Sprintf("%s/room/%d/paste/%d", room.Lobby().BaseURL, room.ID, msg.ID)
		ch.write(nick, "PRIVMSG", ch.Name, ":"+url)

	case campfire.SoundMessage:
		action, ok := soundActions[msg.Body]
		if !ok {
			action = fmt.Sprintf("plays a %s sound", msg.Body)
		}
		ch.writeAction(nick, action)

	case campfire.TopicChangeMessage:
		// The room mirrored the new topic before delivery.
		ch.write(nick, "TOPIC", ch.Name, ":"+room.Topic())

	case campfire.AllowGuestsMessage:
		ch.writeAction(nick, "turned on guest access")
	case campfire.DisallowGuestsMessage:
		ch.writeAction(nick, "turned off guest access")
	case campfire.LockMessage:
		ch.writeAction(nick, "locked the room")
	case campfire.UnlockMessage:
		ch.writeAction(nick, "unlocked the room")
	case campfire.IdleMessage:
		ch.writeAction(nick, "has gone away")
	case campfire.UnidleMessage:
		ch.writeAction(nick, "is back")

	case campfire.TweetMessage:
		ch.write(nick, "PRIVMSG", ch.Name, ":<-- pasted a tweet; tweet rendering is not implemented")
	case campfire.UploadMessage:
		ch.write(nick, "PRIVMSG", ch.Name, ":<-- uploaded a file; upload rendering is not implemented")
	}
}

func (ch *Channel) rememberUser(user *campfire.User) {
	ch.mu.Lock()
	if _, ok := ch.users[user.ID]; !ok {
		ch.users[user.ID] = newChannelUser(user)
	}
	ch.mu.Unlock()
}

// writeNames sends the channel membership as a names reply followed by
// end-of-names. Every bridged user is presented as an op; the bridge's own
// identity is excluded.
func (ch *Channel) writeNames() {
	me := ch.me()
	ch.mu.Lock()
	nicks := make([]string, 0, len(ch.users))
	for id, u := range ch.users {
		if me != nil && id == me.ID {
			continue
		}
		nicks = append(nicks, "@"+u.Nick)
	}
	ch.mu.Unlock()
	sort.Strings(nicks)
	ch.reply(irc.RplNamReply, map[string]string{"channel": ch.Name, "nicks": strings.Join(nicks, " ")})
	ch.reply(irc.RplEndOfNames, map[string]string{"channel": ch.Name})
}

// writeTopic announces the current topic, or its absence.
func (ch *Channel) writeTopic() {
	if topic := ch.room.Topic(); topic != "" {
		ch.reply(irc.RplTopic, map[string]string{"channel": ch.Name, "topic": topic})
	} else {
		ch.reply(irc.RplNoTopic, map[string]string{"channel": ch.Name})
	}
}

func (ch *Channel) writeAction(nick, action string) {
	ch.write(nick, "PRIVMSG", ch.Name, ":\x01ACTION "+action+"\x01")
}

func (ch *Channel) write(prefix, command string, args ...string) {
	if err := ch.bridge.conn.Write(prefix, command, args...); err != nil {
		ch.logger().Debug("wire write failed", slog.String("command", command), slog.Any("err", err))
	}
}

func (ch *Channel) reply(code int, ctx map[string]string) {
	ch.bridge.reply(code, ctx)
}

func (ch *Channel) notice(text string) {
	if err := ch.bridge.conn.Notice(text); err != nil {
		ch.logger().Debug("notice write failed", slog.Any("err", err))
	}
}

func (ch *Channel) logger() *slog.Logger {
	return ch.bridge.log.With(slog.String("channel", ch.Name))
}
