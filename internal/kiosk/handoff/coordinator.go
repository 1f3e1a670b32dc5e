package handoff

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"
)

// readPoll is how long one blocking read waits before re-checking for
// shutdown. Short enough that Stop is responsive, long enough that the
// loop is mostly asleep.
const readPoll = 500 * time.Millisecond

// Resolver produces the verdict for one READY request. Implemented by
// the coordinator service (session check, capture, classify).
type Resolver interface {
	Resolve(ctx context.Context) Token
}

// Coordinator is the coordinator side of the protocol: it waits for
// READY lines and answers each with exactly one verdict token.
type Coordinator struct {
	conn     Conn
	reader   *bufio.Reader
	resolver Resolver
	logger   Logger
}

// NewCoordinator creates the coordinator side over the given stream.
func NewCoordinator(conn Conn, resolver Resolver, logger Logger) *Coordinator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		conn:     conn,
		reader:   bufio.NewReader(conn),
		resolver: resolver,
		logger:   logger,
	}
}

// Run serves the protocol until the context is cancelled or the stream
// fails. Requests are handled strictly one at a time; a second READY
// arriving while a verdict is being resolved waits in the stream buffer.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		line, err := c.readLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}

		token := ParseToken(line)
		if token != TokenReady {
			c.logger.Warn("ignoring unexpected protocol line", "line", line)
			continue
		}

		verdict := c.resolver.Resolve(ctx)
		if verdict == TokenUnknown || verdict == TokenReady {
			verdict = TokenError
		}

		if _, err := fmt.Fprintf(c.conn, "%s\n", verdict); err != nil {
			return fmt.Errorf("writing verdict: %w", err)
		}
		c.logger.Info("verdict sent", "token", verdict.String())
	}
}

// readLine blocks for the next line, polling the read deadline so a
// cancelled context is noticed within readPoll.
func (c *Coordinator) readLine(ctx context.Context) (string, error) {
	var pending strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(readPoll)); err != nil {
			return "", fmt.Errorf("setting read deadline: %w", err)
		}

		chunk, err := c.reader.ReadString('\n')
		pending.WriteString(chunk)
		if err != nil {
			if isTimeout(err) {
				// A partial line read before the deadline carries over to
				// the next poll.
				continue
			}
			return "", err
		}
		return pending.String(), nil
	}
}
