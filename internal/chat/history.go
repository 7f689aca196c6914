package chat

import (
	"context"

	"github.com/youruser/chatcore/internal/api"
)

// fetchHistory loads the authoritative message history for a session and
// merges it into the cache. Concurrent fetches for the same id collapse
// into one request.
func (r *Registry) fetchHistory(id string) {
	_, err, _ := r.fetches.Do(id, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
		defer cancel()

		fetched, err := r.history.FetchMessages(ctx, id)
		if err != nil {
			return nil, err
		}
		r.mergeHistory(id, fetched)
		return nil, nil
	})
	if err != nil {
		// History is a cache fill; a failed fetch leaves the session
		// usable with whatever is local.
		r.log.Error().Err(err).Str("session", id).Msg("history fetch failed")
	}
}

// mergeHistory reconciles fetched server state with optimistic local
// state without duplication: the server's ordering is authoritative,
// local messages the server does not know yet are kept after it, and any
// fetched message whose id is already cached is not inserted twice.
func (r *Registry) mergeHistory(id string, fetched []api.HistoryMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := r.ensureSessionLocked(id)

	known := make(map[string]bool, len(sess.messages))
	for _, msg := range sess.messages {
		known[msg.ID] = true
	}

	merged := make([]Message, 0, len(fetched)+len(sess.messages))
	fromServer := make(map[string]bool, len(fetched))
	for _, hm := range fetched {
		fromServer[hm.ID] = true
		if known[hm.ID] {
			// Keep the local copy; it may carry streaming state the
			// server's snapshot predates.
			if local := sess.find(hm.ID); local != nil {
				merged = append(merged, *local)
			}
			continue
		}
		merged = append(merged, historyMessage(hm))
	}
	for _, msg := range sess.messages {
		if !fromServer[msg.ID] {
			merged = append(merged, msg)
		}
	}

	sess.messages = merged
	r.log.Debug().
		Str("session", id).
		Int("fetched", len(fetched)).
		Int("total", len(merged)).
		Msg("history merged")
}

// historyMessage converts a wire history entry to a cached message.
func historyMessage(hm api.HistoryMessage) Message {
	sender := SenderUser
	if hm.Sender == string(SenderAI) || hm.Sender == "assistant" {
		sender = SenderAI
	}
	return Message{
		ID:        hm.ID,
		Sender:    sender,
		Text:      hm.Text,
		Timestamp: hm.Timestamp,
	}
}
