package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/youruser/chatcore/internal/api"
)

// StreamState is the per-invocation state of a stream controller.
type StreamState int

const (
	StreamIdle StreamState = iota
	StreamOpening
	StreamStreaming
	StreamFinalizing
	StreamCompleted
	StreamCancelled
	StreamErrored
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamOpening:
		return "opening"
	case StreamStreaming:
		return "streaming"
	case StreamFinalizing:
		return "finalizing"
	case StreamCompleted:
		return "completed"
	case StreamCancelled:
		return "cancelled"
	case StreamErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a stream invocation.
func (s StreamState) Terminal() bool {
	return s == StreamCompleted || s == StreamCancelled || s == StreamErrored
}

// StreamSender opens the outbound request and delivers response fragments
// in arrival order. Implemented by api.Client.
type StreamSender interface {
	SendStream(ctx context.Context, req api.SendRequest, onFragment api.FragmentFunc) error
}

// StreamResult describes the terminal outcome of one SendMessage call.
type StreamResult struct {
	SessionID string
	MessageID string // id of the AI message that received the stream
	Text      string // final message text
	State     StreamState
}

// controller owns one streaming invocation for one session. Instances are
// single-use; a new SendMessage call creates a fresh controller at idle.
type controller struct {
	reg       *Registry
	sessionID string
	messageID string
	state     StreamState
	tok       *cancelToken
	asm       assembler
}

func newController(reg *Registry, sessionID string, tok *cancelToken) *controller {
	return &controller{
		reg:       reg,
		sessionID: sessionID,
		state:     StreamIdle,
		tok:       tok,
	}
}

// run drives the state machine from idle to a terminal state. The request
// must already be validated; run performs network IO. The returned error
// is the transport failure for an errored stream, nil for completion and
// cancellation.
func (c *controller) run(ctx context.Context, sender StreamSender, req api.SendRequest) (*StreamResult, error) {
	c.state = StreamOpening
	c.messageID = c.reg.insertPlaceholder(c.sessionID)

	streamCtx, stop := context.WithCancel(ctx)
	defer stop()
	c.tok.bind(stop)

	err := sender.SendStream(streamCtx, req, c.onFragment)

	var streamErr error
	switch {
	case c.tok.Cancelled():
		// Partial text is preserved as-is; the carry buffer is not
		// flushed because the word it holds never completed.
		c.state = StreamCancelled
		c.reg.finalizeStream(c.sessionID, c.messageID, c.asm.Text(), false)
		c.reg.log.Debug().Str("session", c.sessionID).Msg("stream cancelled")

	case err != nil:
		c.state = StreamErrored
		streamErr = err
		text := renderStreamError(c.asm.Flush(), err)
		c.reg.finalizeStream(c.sessionID, c.messageID, text, true)
		c.reg.log.Error().Err(err).Str("session", c.sessionID).Msg("stream failed")

	default:
		c.state = StreamFinalizing
		final := c.asm.Flush()
		c.reg.finalizeStream(c.sessionID, c.messageID, final, false)
		c.state = StreamCompleted
		c.reg.log.Debug().
			Str("session", c.sessionID).
			Int("chars", len(final)).
			Msg("stream completed")
	}

	return &StreamResult{
		SessionID: c.sessionID,
		MessageID: c.messageID,
		Text:      c.reg.messageText(c.sessionID, c.messageID),
		State:     c.state,
	}, streamErr
}

// onFragment applies one transport fragment. The cancellation token is
// consulted here, at the point of application: a fragment that raced an
// in-flight cancel is dropped, not applied.
func (c *controller) onFragment(fragment string) {
	if c.tok.Cancelled() {
		return
	}
	if c.state == StreamOpening {
		c.state = StreamStreaming
	}

	text, grew := c.asm.Feed(fragment)
	if !grew {
		return
	}
	c.reg.applyStreamText(c.sessionID, c.messageID, text)
}

// renderStreamError turns a transport failure into the user-facing message
// text. Partial output is kept with the error appended rather than thrown
// away.
func renderStreamError(partial string, err error) string {
	var detail string
	switch {
	case errors.Is(err, api.ErrAuthExpired):
		detail = "Your session has expired. Please sign in again."
	case errors.Is(err, api.ErrServerFault):
		detail = fmt.Sprintf("The server reported an error: %v", err)
	default:
		detail = "Connection lost while receiving the response."
	}

	if partial == "" {
		return detail
	}
	return partial + "\n\n[" + detail + "]"
}
