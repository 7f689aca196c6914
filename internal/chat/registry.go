package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/youruser/chatcore/internal/api"
	"github.com/youruser/chatcore/internal/logging"
)

const defaultFetchTimeout = 15 * time.Second

// HistoryFetcher retrieves a session's authoritative message history.
// Implemented by api.Client.
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, sessionID string) ([]api.HistoryMessage, error)
}

// Options configures a Registry.
type Options struct {
	Sender  StreamSender
	History HistoryFetcher // optional; nil disables history fetches
	Bus     *Bus           // optional; nil disables event publishing

	WindowSize   int           // max context turns per send; defaults to DefaultWindowSize
	TokenBudget  int           // 0 disables token-based window trimming
	FetchTimeout time.Duration // per history fetch

	// CancelOnSwitch controls whether switching the active session
	// cancels the previous session's in-flight stream. Defaults to true.
	CancelOnSwitch *bool
}

// Registry is the top-level aggregate: it owns every session's message
// list and streaming flag and routes all send, cancel, and mutation
// operations. All methods are safe for concurrent use; the registry's
// mutex serializes session-map access so at most one writer touches a
// session's entry at a time.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	activeID string

	sender  StreamSender
	history HistoryFetcher
	bus     *Bus

	windowSize     int
	tokenBudget    int
	fetchTimeout   time.Duration
	cancelOnSwitch bool

	fetches singleflight.Group
	log     zerolog.Logger
}

// New creates a session registry.
func New(opts Options) *Registry {
	cancelOnSwitch := true
	if opts.CancelOnSwitch != nil {
		cancelOnSwitch = *opts.CancelOnSwitch
	}
	windowSize := opts.WindowSize
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}

	return &Registry{
		sessions:       make(map[string]*session),
		sender:         opts.Sender,
		history:        opts.History,
		bus:            opts.Bus,
		windowSize:     windowSize,
		tokenBudget:    opts.TokenBudget,
		fetchTimeout:   fetchTimeout,
		cancelOnSwitch: cancelOnSwitch,
		log:            logging.For("chat"),
	}
}

// SetActiveSession switches the active session. Under the default policy
// an in-flight stream on the previously active session is cancelled
// first: switching away is the canonical cancellation trigger. If the
// target session has no cached messages and its id looks fetchable, an
// asynchronous history fetch is started.
func (r *Registry) SetActiveSession(id string) {
	r.mu.Lock()

	if r.cancelOnSwitch && r.activeID != "" && r.activeID != id {
		if prev, ok := r.sessions[r.activeID]; ok && prev.streaming && prev.cancel != nil {
			r.log.Debug().Str("session", r.activeID).Msg("cancelling stream on session switch")
			prev.cancel.Cancel()
		}
	}

	r.activeID = id
	sess := r.ensureSessionLocked(id)
	needFetch := len(sess.messages) == 0 && r.history != nil && validSessionID(id)
	r.mu.Unlock()

	if needFetch {
		go r.fetchHistory(id)
	}
}

// ActiveSession returns the currently active session id, or "".
func (r *Registry) ActiveSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// GetMessages returns a copy of a session's message list, empty if the
// session has no cached messages.
func (r *Registry) GetMessages(id string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return []Message{}
	}
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// AddMessage appends a message to a session, creating the session if
// needed.
func (r *Registry) AddMessage(id string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.ensureSessionLocked(id)
	sess.messages = append(sess.messages, msg)
}

// UpdateMessage applies a partial update to a message in place. Unknown
// message ids are a logged no-op. The streaming flag can only be
// lowered, never re-raised.
func (r *Registry) UpdateMessage(id, messageID string, upd MessageUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.ensureSessionLocked(id)
	msg := sess.find(messageID)
	if msg == nil {
		r.log.Debug().Str("session", id).Str("message", messageID).Msg("update for unknown message ignored")
		return
	}

	if upd.Text != nil {
		msg.Text = *upd.Text
	}
	if upd.IsError != nil {
		msg.IsError = *upd.IsError
	}
	if upd.IsStreaming != nil && msg.IsStreaming {
		// The streaming flag only ever transitions true -> false.
		msg.IsStreaming = *upd.IsStreaming
	}
	if upd.Attachment != nil {
		msg.Attachment = upd.Attachment
	}
}

// RemoveMessage deletes a message from a session. Unknown ids are a
// logged no-op.
func (r *Registry) RemoveMessage(id, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.ensureSessionLocked(id)
	for i := range sess.messages {
		if sess.messages[i].ID == messageID {
			sess.messages = append(sess.messages[:i], sess.messages[i+1:]...)
			return
		}
	}
	r.log.Debug().Str("session", id).Str("message", messageID).Msg("remove for unknown message ignored")
}

// SetSessionTitle renames a session and notifies observers.
func (r *Registry) SetSessionTitle(id, title string) {
	r.mu.Lock()
	sess := r.ensureSessionLocked(id)
	sess.title = title
	r.mu.Unlock()

	r.publish(Event{Type: EventTitleUpdated, SessionID: id, Title: title})
}

// SessionTitle returns a session's title, "" if unset or unknown.
func (r *Registry) SessionTitle(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		return sess.title
	}
	return ""
}

// IsStreaming reports whether a session has an in-flight stream.
func (r *Registry) IsStreaming(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		return sess.streaming
	}
	return false
}

// SessionIDs returns the ids of all cached sessions.
func (r *Registry) SessionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Cancel requests cooperative cancellation of a session's in-flight
// stream. Safe to call at any time: with no stream in flight, or after
// the stream reached a terminal state, it is a no-op.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok || sess.cancel == nil {
		r.log.Debug().Str("session", id).Msg("cancel with no stream in flight ignored")
		return
	}
	sess.cancel.Cancel()
}

// SendMessage validates the request, records the user turn, and drives
// one streaming exchange to a terminal state. It blocks until the stream
// completes, errors, or is cancelled; callers stream multiple sessions
// concurrently by invoking it from separate goroutines.
//
// Validation failures (ErrSessionRequired, ErrEmptyRequest,
// ErrStreamActive) are returned before any message is recorded or any
// network action is taken. A mid-stream failure is absorbed into the AI
// message and also returned alongside the result.
func (r *Registry) SendMessage(ctx context.Context, req SendRequest) (*StreamResult, error) {
	if req.SessionID == "" {
		return nil, ErrSessionRequired
	}
	if req.empty() {
		return nil, ErrEmptyRequest
	}
	if req.Type == "" {
		req.Type = "chat"
	}

	r.mu.Lock()
	sess := r.ensureSessionLocked(req.SessionID)
	if sess.streaming {
		r.mu.Unlock()
		return nil, ErrStreamActive
	}

	// The window reflects the conversation before this turn; the new
	// message itself travels in the request's message field.
	window := buildWindow(sess.messages, r.windowSize, r.tokenBudget)

	sess.messages = append(sess.messages, NewUserMessage(req.Message, req.Attachment))
	tok := newCancelToken()
	sess.streaming = true
	sess.cancel = tok
	r.mu.Unlock()

	apiReq := api.SendRequest{
		SessionID:     req.SessionID,
		Message:       req.Message,
		Type:          req.Type,
		Attachment:    attachmentPayload(req.Attachment),
		ContextWindow: window,
	}

	ctrl := newController(r, req.SessionID, tok)
	res, streamErr := ctrl.run(ctx, r.sender, apiReq)

	r.mu.Lock()
	sess.streaming = false
	sess.cancel = nil
	r.mu.Unlock()

	r.publish(Event{Type: EventMessageFinalized, SessionID: req.SessionID, MessageID: res.MessageID})

	return res, streamErr
}

// ClearCache evicts all sessions. This is the only way a session is ever
// destroyed.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	for _, sess := range r.sessions {
		if sess.cancel != nil {
			sess.cancel.Cancel()
		}
	}
	r.sessions = make(map[string]*session)
	r.activeID = ""
	r.mu.Unlock()

	r.publish(Event{Type: EventCacheCleared})
}

// ensureSessionLocked returns the session for id, creating it on first
// reference. Callers must hold r.mu.
func (r *Registry) ensureSessionLocked(id string) *session {
	if sess, ok := r.sessions[id]; ok {
		return sess
	}
	sess := &session{id: id}
	r.sessions[id] = sess
	r.log.Debug().Str("session", id).Msg("session created")

	// Publishing must not run under the lock; the bus may block on slow
	// subscribers.
	if r.bus != nil {
		go r.publish(Event{Type: EventSessionCreated, SessionID: id})
	}
	return sess
}

// insertPlaceholder appends the streaming AI placeholder message and
// returns its id.
func (r *Registry) insertPlaceholder(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.ensureSessionLocked(id)
	msg := newPlaceholderMessage()
	sess.messages = append(sess.messages, msg)
	return msg.ID
}

// applyStreamText writes the accumulated stream text into the placeholder
// message. Only an open stream may grow; once the flag dropped the write
// is discarded.
func (r *Registry) applyStreamText(id, messageID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	msg := sess.find(messageID)
	if msg == nil || !msg.IsStreaming {
		return
	}
	msg.Text = text
}

// finalizeStream writes the terminal text exactly once and closes the
// message's streaming flag.
func (r *Registry) finalizeStream(id, messageID, text string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	msg := sess.find(messageID)
	if msg == nil || !msg.IsStreaming {
		return
	}
	msg.Text = text
	msg.IsError = isError
	msg.IsStreaming = false
}

// messageText returns the current text of a message, "" if unknown.
func (r *Registry) messageText(id, messageID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		if msg := sess.find(messageID); msg != nil {
			return msg.Text
		}
	}
	return ""
}

func (r *Registry) publish(ev Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ev); err != nil {
		r.log.Error().Err(err).Str("event", string(ev.Type)).Msg("event publish failed")
	}
}

// find returns a pointer into the session's message slice, nil if absent.
func (s *session) find(messageID string) *Message {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			return &s.messages[i]
		}
	}
	return nil
}

func attachmentPayload(a *Attachment) *api.AttachmentPayload {
	if a == nil {
		return nil
	}
	return &api.AttachmentPayload{
		URL:           a.URL,
		FileName:      a.FileName,
		MimeType:      a.MimeType,
		Type:          string(a.DetectedType),
		ExtractedText: a.ExtractedText,
		ContentHash:   a.ContentHash,
	}
}
