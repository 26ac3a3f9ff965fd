package irc

import (
	"reflect"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{
			name: "bare command",
			line: "QUIT",
			want: Message{Command: "quit"},
		},
		{
			name: "command lowercased",
			line: "NICK alice",
			want: Message{Command: "nick", Params: []string{"alice"}},
		},
		{
			name: "prefix stripped of colon",
			line: ":irc.example.com PING",
			want: Message{Prefix: "irc.example.com", Command: "ping"},
		},
		{
			name: "middle params plus trailing",
			line: "USER guest tolmoon tolsun :Ronnie Reagan",
			want: Message{Command: "user", Params: []string{"guest", "tolmoon", "tolsun", "Ronnie Reagan"}},
		},
		{
			name: "trailing keeps internal spaces and colons",
			line: "PRIVMSG #general :hello : world",
			want: Message{Command: "privmsg", Params: []string{"#general", "hello : world"}},
		},
		{
			name: "empty trailing is a real param",
			line: "TOPIC #general :",
			want: Message{Command: "topic", Params: []string{"#general", ""}},
		},
		{
			name: "extra whitespace between params",
			line: "MODE   #general   +o   alice",
			want: Message{Command: "mode", Params: []string{"#general", "+o", "alice"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage(tt.line)
			if err != nil {
				t.Fatalf("ParseMessage(%q) error: %v", tt.line, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseMessage(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseMessageMalformed(t *testing.T) {
	for _, line := range []string{":prefixonly", ":p !!!"} {
		if _, err := ParseMessage(line); err == nil {
			t.Errorf("ParseMessage(%q) succeeded, want error", line)
		}
	}
}

func TestParam(t *testing.T) {
	m := Message{Command: "privmsg", Params: []string{"#general", "hi"}}
	if got := m.Param(0); got != "#general" {
		t.Errorf("Param(0) = %q, want #general", got)
	}
	if got := m.Param(5); got != "" {
		t.Errorf("Param(5) = %q, want empty string for out-of-range index", got)
	}
}

func TestFormatHostmask(t *testing.T) {
	if got := FormatHostmask("alice", "alice", "localhost"); got != "alice!~alice@localhost" {
		t.Errorf("FormatHostmask = %q", got)
	}
}
