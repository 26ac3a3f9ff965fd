// Package bridge binds one IRC connection to a set of remote chat rooms:
// command dispatch on the IRC side, channel state, and the translation of
// messages, rosters, and topics in both directions.
package bridge

import (
	"strings"

	"github.com/onnwee/campline/campfire"
	"github.com/onnwee/campline/irc"
)

// DeriveNick maps a remote display name onto an IRC nick: lower-case the
// name, split on whitespace, take the first token plus the first character of
// the second token if there is one. "Prince Adam" becomes "princea". The
// derivation is deterministic and lossy; two users whose names collide are
// indistinguishable on the IRC side.
func DeriveNick(displayName string) string {
	fields := strings.Fields(strings.ToLower(displayName))
	if len(fields) == 0 {
		return ""
	}
	nick := fields[0]
	if len(fields) > 1 {
		nick += string([]rune(fields[1])[0])
	}
	return nick
}

// channelUser is a remote user mirrored into an IRC channel: the identity the
// IRC side sees whenever that user speaks, joins, or parts.
type channelUser struct {
	ID       int64
	Nick     string
	Hostmask string
	Realname string
}

func newChannelUser(u *campfire.User) *channelUser {
	nick := DeriveNick(u.Name)
	return &channelUser{
		ID:       u.ID,
		Nick:     nick,
		Hostmask: irc.FormatHostmask(nick, nick, "localhost"),
		Realname: u.Name,
	}
}
