package transport

import (
	"log/slog"
	"time"
)

const inboxLogPrefix = "transport:inbox"

// inboxCapacity bounds the undelivered backlog per inbox.
const inboxCapacity = 256

// Inbox buffers inbound envelopes for deadline-bound correlation waits.
// Every request/response exchange goes through WaitFor; a timeout is an
// expected, recoverable condition signaled by nil, never an error.
type Inbox struct {
	ch chan *Envelope
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{ch: make(chan *Envelope, inboxCapacity)}
}

// Put enqueues an envelope. When the inbox is full the oldest pending
// envelope is dropped to keep the newest.
func (in *Inbox) Put(env *Envelope) {
	for {
		select {
		case in.ch <- env:
			return
		default:
			select {
			case dropped := <-in.ch:
				slog.Warn(inboxLogPrefix + " - inbox full, dropping " + dropped.MsgType)
			default:
			}
		}
	}
}

// WaitFor blocks until an envelope of the expected message type arrives or
// the timeout elapses; nil means timeout. Envelopes of other types received
// while waiting are discarded.
func (in *Inbox) WaitFor(msgType string, timeout time.Duration) *Envelope {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case env := <-in.ch:
			if env.MsgType == msgType {
				return env
			}
		case <-timer.C:
			return nil
		}
	}
}
