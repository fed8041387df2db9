package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/model"
)

const (
	sendBuffer = 64
	flushWait  = time.Second
)

// Client owns the write side of one attempt stream. Session events arrive
// on the session goroutine and are queued, never written inline, so a slow
// browser cannot stall the attempt.
type Client struct {
	conn      *websocket.Conn
	send      chan interface{}
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewClient wraps conn. Call Run to start writing.
func NewClient(conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		conn: conn,
		send: make(chan interface{}, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// Run writes queued messages and keep-alive pings until Close is called or
// a write fails. It is the only writer on the connection and closes it on
// the way out, after flushing what was queued before Close.
func (c *Client) Run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			c.flush()
			return
		case v := <-c.send:
			if err := WriteTyped(c.conn, v); err != nil {
				c.log.Debug().Err(err).Msg("Write failed, closing stream")
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// flush writes whatever is still queued, all within flushWait.
func (c *Client) flush() {
	c.conn.SetWriteDeadline(time.Now().Add(flushWait))
	for {
		select {
		case v := <-c.send:
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Send queues v. A client whose buffer is full is too slow to follow the
// attempt and is disconnected; it can reconnect and ask for state.
func (c *Client) Send(v interface{}) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- v:
	default:
		c.log.Warn().Msg("Send buffer full, dropping client")
		c.Close()
	}
}

// Close stops the writer, which flushes the queue and closes the
// connection. Safe to call repeatedly.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Error queues an error event.
func (c *Client) Error(msg string) {
	c.Send(ErrorResponse{Event: EventError, Error: msg})
}

// Reject queues a rejected event for action.
func (c *Client) Reject(action Action, reason string) {
	c.Send(RejectedResponse{Event: EventRejected, Action: action, Reason: reason})
}

// State queues a state event.
func (c *Client) State(snap model.Snapshot) {
	c.Send(StateResponse{Event: EventState, Snapshot: snap})
}

// ─── attempt.Notifier ───────────────────────────────────────────────

func (c *Client) Started(snap model.Snapshot) {
	c.Send(StartedResponse{Event: EventStarted, Fullscreen: true, Snapshot: snap})
}

func (c *Client) Tick(remaining int) {
	c.Send(TimerResponse{Event: EventTimer, Remaining: remaining})
}

func (c *Client) Warning(count, max int) {
	c.Send(WarningResponse{Event: EventWarning, Count: count, Max: max})
}

func (c *Client) Submitted(review model.Review) {
	c.Send(SubmittedResponse{
		Event:   EventSubmitted,
		Trigger: review.Trigger,
		Result:  review.Result,
		Review:  review,
	})
}
