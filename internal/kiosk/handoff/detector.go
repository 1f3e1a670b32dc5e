package handoff

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Conn is the byte stream the protocol runs over. Both net.Conn and a
// serial port handle satisfy it.
type Conn interface {
	io.ReadWriter
	SetReadDeadline(t time.Time) error
}

// Logger defines the logging interface for the handoff protocol.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Detector is the detector side of the protocol: it sends READY once
// per confirmed object and blocks for exactly one verdict.
//
// Internally it is a two-state machine, idle and awaiting-result. The
// states are not exposed; RequestClassification is the whole
// awaiting-result phase, and the caller's sequential loop guarantees no
// overlapping requests.
//
// Not safe for concurrent use.
type Detector struct {
	conn    Conn
	reader  *bufio.Reader
	timeout time.Duration
	logger  Logger
}

// NewDetector creates the detector side over the given stream. The
// timeout bounds how long one verdict is waited for; an elapsed timeout
// resolves as TokenError.
func NewDetector(conn Conn, timeout time.Duration, logger Logger) *Detector {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Detector{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
		logger:  logger,
	}
}

// RequestClassification sends READY and waits for the coordinator's
// verdict.
//
// Unrecognised lines are logged and ignored while waiting, so a late
// valid token after protocol noise still resolves the request. When the
// timeout elapses without a valid token the request resolves as
// TokenError; the physical item is treated as a transport failure.
//
// Returns a non-nil error only when the stream itself fails; a timeout
// is a normal resolution, not an error.
func (d *Detector) RequestClassification() (Token, error) {
	if _, err := fmt.Fprintf(d.conn, "%s\n", TokenReady); err != nil {
		return TokenError, fmt.Errorf("writing READY: %w", err)
	}

	deadline := time.Now().Add(d.timeout)
	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return TokenError, fmt.Errorf("setting read deadline: %w", err)
	}

	for {
		line, err := d.reader.ReadString('\n')
		if err != nil {
			if isTimeout(err) {
				d.logger.Warn("classification timed out, treating as error",
					"timeout", d.timeout.String())
				return TokenError, nil
			}
			return TokenError, fmt.Errorf("reading verdict: %w", err)
		}

		token := ParseToken(line)
		if token == TokenUnknown || token == TokenReady {
			// Protocol noise; keep waiting for a real verdict.
			d.logger.Warn("ignoring unrecognised protocol line", "line", line)
			continue
		}

		d.logger.Debug("verdict received", "token", token.String())
		return token, nil
	}
}

// isTimeout reports whether an error is a read-deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
