package irc

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
)

// Names holds the identity fields from the USER command.
type Names struct {
	User     string
	Host     string
	Server   string
	Realname string
}

// Hooks are the typed transition outcomes a connection can report. Each Conn
// owns its own Hooks value; there is no shared emitter. All hooks are
// optional and are invoked from the connection's read goroutine, except
// OnClose which fires exactly once when the socket goes away.
type Hooks struct {
	// OnMessage receives each well-formed IRC message in arrival order.
	OnMessage func(Message)
	// OnRegistered fires exactly once, the instant both nick and names are
	// set, regardless of arrival order.
	OnRegistered func()
	// OnParseError reports a line that did not match the message grammar.
	// The connection stays open.
	OnParseError func(line string, err error)
	// OnClose fires when the connection is torn down.
	OnClose func()
}

// Conn is one accepted IRC client connection. It frames the byte stream into
// CRLF-terminated lines, parses them, and tracks registration state. Command
// semantics belong to the caller via Hooks.OnMessage.
type Conn struct {
	Hooks Hooks

	conn       net.Conn
	serverHost string

	mu         sync.Mutex
	nick       string
	names      Names
	haveNames  bool
	registered bool

	writeMu sync.Mutex

	closeOnce sync.Once
}

// NewConn wraps an accepted socket. serverHost is the prefix used on numeric
// replies.
func NewConn(conn net.Conn, serverHost string) *Conn {
	return &Conn{conn: conn, serverHost: serverHost}
}

// RemoteAddr reports the peer address, for logging.
func (c *Conn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// ServerHost is the server name used as the prefix on replies.
func (c *Conn) ServerHost() string { return c.serverHost }

// Run reads the socket until it closes. Bytes arrive in arbitrary chunks and
// accumulate in a buffer; each CRLF delimits one line, consumed left to
// right, so partial lines across reads and several lines per read both work.
// A line longer than MaxLineLen before its CRLF closes the connection.
func (c *Conn) Run() {
	defer c.Close()

	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				idx := bytes.Index(buf, []byte("\r\n"))
				if idx < 0 {
					if len(buf) > MaxLineLen {
						return
					}
					break
				}
				line := string(buf[:idx])
				if len(line) > MaxLineLen {
					return
				}
				buf = buf[idx+2:]
				c.handleLine(line)
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	msg, err := ParseMessage(line)
	if err != nil {
		if c.Hooks.OnParseError != nil {
			c.Hooks.OnParseError(line, err)
		}
		return
	}
	if c.Hooks.OnMessage != nil {
		c.Hooks.OnMessage(msg)
	}
}

// Nick returns the current nick (empty until NICK is received).
func (c *Conn) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// SetNick records the nick and advances registration if names are already set.
func (c *Conn) SetNick(nick string) {
	c.mu.Lock()
	c.nick = nick
	fire := !c.registered && c.haveNames
	if fire {
		c.registered = true
	}
	c.mu.Unlock()
	if fire && c.Hooks.OnRegistered != nil {
		c.Hooks.OnRegistered()
	}
}

// Names returns the USER identity fields.
func (c *Conn) Names() Names {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names
}

// SetNames records the USER fields and advances registration if the nick is
// already set.
func (c *Conn) SetNames(names Names) {
	c.mu.Lock()
	c.names = names
	c.haveNames = true
	fire := !c.registered && c.nick != ""
	if fire {
		c.registered = true
	}
	c.mu.Unlock()
	if fire && c.Hooks.OnRegistered != nil {
		c.Hooks.OnRegistered()
	}
}

// Registered reports whether both nick and names have been received. The
// transition is one-way.
func (c *Conn) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// Hostmask renders the client's nick!~user@host identity.
func (c *Conn) Hostmask() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FormatHostmask(c.nick, c.names.User, c.names.Host)
}

// Write sends one raw IRC line :prefix command arg1 arg2 ... Args carrying a
// leading ':' mark the trailing parameter; the caller supplies it, matching
// how reply templates embed their own colons.
func (c *Conn) Write(prefix, command string, args ...string) error {
	parts := make([]string, 0, len(args)+2)
	if prefix != "" {
		if !strings.HasPrefix(prefix, ":") {
			prefix = ":" + prefix
		}
		parts = append(parts, prefix)
	}
	parts = append(parts, command)
	parts = append(parts, args...)
	line := strings.Join(parts, " ")

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("write %q: %w", command, err)
	}
	return nil
}

// Reply encodes a numeric reply: the code zero-padded to three digits,
// prefixed with the server host, the connection's current nick as first
// argument, and the rendered template as the rest. A context missing a
// referenced key is an error, never blank output.
func (c *Conn) Reply(code int, ctx map[string]string) error {
	text, err := RenderReply(code, ctx)
	if err != nil {
		return err
	}
	return c.Write(c.serverHost, fmt.Sprintf("%03d", code), c.Nick(), text)
}

// Notice sends a server NOTICE to the client, used to surface backend
// failures that would otherwise be invisible on the IRC side.
func (c *Conn) Notice(text string) error {
	target := c.Nick()
	if target == "" {
		target = "*"
	}
	return c.Write(c.serverHost, "NOTICE", target, ":"+text)
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil {
			slog.Debug("irc conn close", slog.Any("err", err))
		}
		if c.Hooks.OnClose != nil {
			c.Hooks.OnClose()
		}
	})
}
