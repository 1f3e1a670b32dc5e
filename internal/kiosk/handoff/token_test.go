package handoff

import "testing"

func TestParseToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Token
	}{
		{"ready", "READY", TokenReady},
		{"ready lowercase", "ready", TokenReady},
		{"ready with crlf", "READY\r\n", TokenReady},
		{"plastic", "PLASTIC\n", TokenPlastic},
		{"can", "can\n", TokenCan},
		{"rejected", "REJECTED", TokenRejected},
		{"error", "ERROR", TokenError},
		{"no session", "NO_SESSION", TokenNoSession},
		{"mixed case padded", "  No_Session  \n", TokenNoSession},
		{"garbage", "HELLO", TokenUnknown},
		{"empty line", "\n", TokenUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseToken(tt.input); got != tt.want {
				t.Errorf("ParseToken(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestToken_String(t *testing.T) {
	tokens := []Token{TokenReady, TokenPlastic, TokenCan, TokenRejected, TokenError, TokenNoSession}
	for _, tok := range tokens {
		if got := ParseToken(tok.String()); got != tok {
			t.Errorf("ParseToken(%q) = %v, want %v", tok.String(), got, tok)
		}
	}
}
