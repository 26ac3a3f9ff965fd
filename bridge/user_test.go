package bridge

import "testing"

func TestDeriveNick(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Bob", "bob"},
		{"Prince Adam", "princea"},
		{"Alice Liddell", "alicel"},
		{"John Ronald Reuel Tolkien", "johnr"},
		{"MARY", "mary"},
		{"  Spaced  Out  ", "spacedo"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DeriveNick(tt.name); got != tt.want {
			t.Errorf("DeriveNick(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
