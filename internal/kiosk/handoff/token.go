// Package handoff implements the line protocol between the detector and
// the coordinator.
//
// The protocol is symmetric and two-party over any byte stream (serial
// or socket): the detector announces a confirmed object with READY, and
// the coordinator answers with exactly one verdict token. One message
// per line, newline terminated, case-insensitive.
package handoff

import "strings"

// Token is one protocol message.
type Token int

// Protocol tokens. UNKNOWN is never sent on the wire; it marks an
// unparseable line on the receive side.
const (
	TokenUnknown Token = iota

	// TokenReady is the detector's request: object confirmed present,
	// classify it.
	TokenReady

	// TokenPlastic sorts the item to the plastic side.
	TokenPlastic

	// TokenCan sorts the item to the can side.
	TokenCan

	// TokenRejected declines the item with no sort. The item was
	// evaluated; it simply earns nothing.
	TokenRejected

	// TokenError signals a transport or timeout failure; no sort, no
	// transaction. Distinguishable from TokenRejected so operators can
	// tell "try again" apart from "item declined".
	TokenError

	// TokenNoSession means no user is bound to this machine; no
	// classification call was spent.
	TokenNoSession
)

// String returns the wire representation of the token.
func (t Token) String() string {
	switch t {
	case TokenReady:
		return "READY"
	case TokenPlastic:
		return "PLASTIC"
	case TokenCan:
		return "CAN"
	case TokenRejected:
		return "REJECTED"
	case TokenError:
		return "ERROR"
	case TokenNoSession:
		return "NO_SESSION"
	default:
		return "UNKNOWN"
	}
}

// ParseToken converts a received line into a Token. Comparison is
// case-insensitive and tolerates surrounding whitespace and line
// terminators. Unrecognised lines return TokenUnknown.
func ParseToken(line string) Token {
	switch strings.ToUpper(strings.TrimSpace(line)) {
	case "READY":
		return TokenReady
	case "PLASTIC":
		return TokenPlastic
	case "CAN":
		return TokenCan
	case "REJECTED":
		return TokenRejected
	case "ERROR":
		return TokenError
	case "NO_SESSION":
		return TokenNoSession
	default:
		return TokenUnknown
	}
}
