package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects for conversation lifecycle events.
const (
	SubjectConversationOpened = "partsbot.conversation.opened"
	SubjectTurnCompleted      = "partsbot.turn.completed"
	SubjectTurnFailed         = "partsbot.turn.failed"
)

// TurnEvent is the payload of every partsbot.* event.
type TurnEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Parts          int    `json:"parts,omitempty"`
	FailureKind    string `json:"failure_kind,omitempty"`
	DurationMS     int64  `json:"duration_ms,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// drainTimeout bounds how long Close waits for pending publishes.
const drainTimeout = 5 * time.Second

type Client struct {
	conn   *nats.Conn
	closed chan struct{}
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	closed := make(chan struct{})
	opts := []nats.Option{
		nats.Name("partsbot"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(closed)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, closed: closed, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Close flushes pending publishes and returns once the connection is
// closed or drainTimeout has passed.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("nats drain failed", "error", err)
		c.conn.Close()
		return
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		c.logger.Warn("nats drain timed out")
		c.conn.Close()
	}
}
