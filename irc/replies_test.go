package irc

import (
	"strings"
	"testing"
)

func TestRenderReply(t *testing.T) {
	tests := []struct {
		name string
		code int
		ctx  map[string]string
		want string
	}{
		{
			name: "nickname in use",
			code: ErrNicknameInUse,
			ctx:  map[string]string{"nick": "bob"},
			want: "bob :Nickname is already in use",
		},
		{
			name: "names reply",
			code: RplNamReply,
			ctx:  map[string]string{"channel": "#general", "nicks": "@alice @bob"},
			want: "@ #general :@alice @bob",
		},
		{
			name: "topic",
			code: RplTopic,
			ctx:  map[string]string{"channel": "#general", "topic": "shipping friday"},
			want: "#general :shipping friday",
		},
		{
			name: "no topic",
			code: RplNoTopic,
			ctx:  map[string]string{"channel": "#general"},
			want: "#general :No topic is set",
		},
		{
			name: "static text ignores extra context",
			code: ErrAlreadyRegistred,
			ctx:  map[string]string{"unused": "x"},
			want: ":You may not reregister",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderReply(tt.code, tt.ctx)
			if err != nil {
				t.Fatalf("RenderReply(%d) error: %v", tt.code, err)
			}
			if got != tt.want {
				t.Errorf("RenderReply(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestRenderReplyMissingKey(t *testing.T) {
	_, err := RenderReply(ErrNicknameInUse, map[string]string{})
	if err == nil {
		t.Fatal("expected error for missing template key, got nil")
	}
	if !strings.Contains(err.Error(), "433") {
		t.Errorf("error should identify the reply code: %v", err)
	}
}

func TestRenderReplyUnknownCode(t *testing.T) {
	if _, err := RenderReply(999, nil); err == nil {
		t.Fatal("expected error for unknown reply code, got nil")
	}
}

func TestAllReplyTemplatesCompile(t *testing.T) {
	if len(compiledReplies) != len(replyTemplates) {
		t.Fatalf("compiled %d templates, want %d", len(compiledReplies), len(replyTemplates))
	}
}
