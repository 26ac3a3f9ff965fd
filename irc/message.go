// Package irc implements the minimal server-side IRC protocol stack the
// gateway needs: RFC 1459 line framing and message grammar, the numeric
// reply catalog, per-connection registration state, and a TCP accept loop.
// It is not a general-purpose ircd; command semantics live in the bridge.
package irc

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxLineLen is the RFC 1459 limit on a single message line, excluding CRLF.
// A connection that sends a longer line is closed.
const MaxLineLen = 512

// Message is one parsed IRC message.
type Message struct {
	Prefix  string // sender prefix without the leading ':', empty if absent
	Command string // lower-cased command token
	Params  []string
}

// messagePattern matches the RFC 1459 §2.3.1 grammar: an optional
// ':'-delimited prefix, a command token, whitespace-separated middle
// parameters (none beginning with ':'), and an optional trailing parameter
// introduced by " :" that runs to end of line.
var messagePattern = regexp.MustCompile(
	`^(?::(\S+) +)?` + // :prefix
		`([A-Za-z0-9]+)\s*` + // command
		`((?:[^:\s]\S*\s*)*)` + // middle params
		`(?: :(.*))?$`) // :trailing

// ParseMessage parses a single line (without CRLF). Lines that do not match
// the grammar return an error; the caller decides whether that is fatal.
func ParseMessage(line string) (Message, error) {
	m := messagePattern.FindStringSubmatch(line)
	if m == nil {
		return Message{}, fmt.Errorf("malformed irc line %q", line)
	}
	msg := Message{
		Prefix:  m[1],
		Command: strings.ToLower(m[2]),
	}
	for _, p := range strings.Fields(m[3]) {
		msg.Params = append(msg.Params, p)
	}
	if m[4] != "" || strings.HasSuffix(line, " :") {
		msg.Params = append(msg.Params, m[4])
	}
	return msg, nil
}

// Param returns the i-th parameter or the empty string.
func (m Message) Param(i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

// FormatHostmask renders the nick!~user@host form used in message prefixes.
func FormatHostmask(nick, user, host string) string {
	return fmt.Sprintf("%s!~%s@%s", nick, user, host)
}
