package bridge

import (
	"context"
	"log/slog"
	"sort"

	"github.com/onnwee/campline/campfire"
	"github.com/onnwee/campline/irc"
	"github.com/onnwee/campline/telemetry"
)

// Bridge owns one IRC connection and the channels bridged over it. The
// channel set is seeded at construction from the static configuration and
// never grows; a JOIN for anything else is refused.
type Bridge struct {
	conn     *irc.Conn
	channels map[string]*Channel

	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

// New wires a freshly accepted connection to its statically configured rooms
// and installs the command hooks. rooms maps IRC channel names to resolved
// room handles; resolution is the bootstrap's responsibility.
func New(ctx context.Context, conn *irc.Conn, rooms map[string]*campfire.Room) *Bridge {
	ctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		conn:     conn,
		channels: make(map[string]*Channel, len(rooms)),
		ctx:      ctx,
		cancel:   cancel,
		log:      telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bridge"), slog.String("remote", conn.RemoteAddr())),
	}
	for name, room := range rooms {
		b.channels[name] = newChannel(b, name, room)
	}

	conn.Hooks = irc.Hooks{
		OnMessage: b.dispatch,
		OnRegistered: func() {
			b.log.Info("client registered", slog.String("nick", conn.Nick()))
			b.writeWelcome()
		},
		OnParseError: func(line string, err error) {
			telemetry.ParseErrors.Inc()
			b.log.Debug("unparseable irc line", slog.String("line", line), slog.Any("err", err))
		},
		OnClose: func() {
			telemetry.ConnectedClients.Dec()
			b.log.Info("client disconnected")
			b.cancel()
		},
	}
	telemetry.ConnectedClients.Inc()
	return b
}

// Channels lists the bridge's channels, name-sorted, for the status surface.
func (b *Bridge) Channels() []*Channel {
	out := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Bridge) writeWelcome() {
	if err := b.conn.Write(b.conn.ServerHost(), "001", b.conn.Nick(), ":Welcome to the campfire gateway"); err != nil {
		b.log.Debug("welcome write failed", slog.Any("err", err))
	}
}

// reply sends a numeric reply, logging render or write failures. Rendering
// fails loudly on a missing template key; that is a programming error here,
// not a client one.
func (b *Bridge) reply(code int, ctx map[string]string) {
	if err := b.conn.Reply(code, ctx); err != nil {
		b.log.Error("numeric reply failed", slog.Int("code", code), slog.Any("err", err))
	}
}

func (b *Bridge) info(text string) {
	b.reply(irc.RplInfo, map[string]string{"info": text})
}

// dispatch handles one inbound IRC message. Only the commands below are
// recognized; anything else is dropped without a reply.
func (b *Bridge) dispatch(msg irc.Message) {
	switch msg.Command {
	case "nick":
		if msg.Param(0) == "" {
			b.reply(irc.ErrNoNicknameGiven, nil)
			return
		}
		b.conn.SetNick(msg.Param(0))

	case "user":
		if b.conn.Registered() {
			b.reply(irc.ErrAlreadyRegistred, nil)
			return
		}
		if len(msg.Params) < 4 {
			b.reply(irc.ErrNeedMoreParams, map[string]string{"command": "USER"})
			return
		}
		b.conn.SetNames(irc.Names{
			User:     msg.Params[0],
			Host:     msg.Params[1],
			Server:   msg.Params[2],
			Realname: msg.Params[3],
		})

	case "ping":
		if err := b.conn.Write("", "PONG", ":"+msg.Param(0)); err != nil {
			b.log.Debug("pong write failed", slog.Any("err", err))
		}

	case "privmsg":
		target := msg.Param(0)
		if target == "" {
			b.reply(irc.ErrNoRecipient, map[string]string{"command": "PRIVMSG"})
			b.info("You must specify a channel name")
			return
		}
		ch := b.channels[target]
		if ch == nil || !ch.Joined() {
			b.reply(irc.ErrCannotSendToChan, map[string]string{"channel": target})
			b.info("You must join the room first")
			return
		}
		ch.Privmsg(msg.Param(1))

	case "topic":
		target := msg.Param(0)
		if target == "" {
			b.reply(irc.ErrNeedMoreParams, map[string]string{"command": "TOPIC"})
			b.info("You must specify a channel name")
			return
		}
		ch := b.channels[target]
		if ch == nil || !ch.Joined() {
			b.reply(irc.ErrNotOnChannel, map[string]string{"channel": target})
			b.info("You must join the room first")
			return
		}
		ch.Topic(msg.Param(1))

	case "join":
		target := msg.Param(0)
		if target == "" {
			b.reply(irc.ErrNeedMoreParams, map[string]string{"command": "JOIN"})
			b.info("You must specify a channel name")
			return
		}
		ch := b.channels[target]
		if ch == nil {
			b.reply(irc.ErrNoSuchChannel, map[string]string{"channel": target})
			b.info("Channels must be listed in the gateway configuration to be joinable")
			return
		}
		ch.Join()
	}
}
