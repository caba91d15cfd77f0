package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fitdb/pkg/errs"
	"fitdb/pkg/logger"
	"fitdb/pkg/models"
	"fitdb/pkg/store"

	"github.com/oklog/ulid/v2"
)

// reactionScanLimit bounds how far back AddReaction looks for its
// target. Reactions on messages older than the most recent 100 fail to
// resolve; the intended behavior for very old messages is an open
// question upstream, so the bound is kept rather than papered over with
// a message-ID index.
const reactionScanLimit = 100

// defaultPageSize applies when GetMessages is called without a limit.
const defaultPageSize = 50

// MessageOptions carries the optional fields of a new message.
type MessageOptions struct {
	ReplyToID string
	Metadata  map[string]interface{}
}

func messageKey(convID string, createdAt int64, msgID string) store.Key {
	return store.K("messages", convID, store.PadInt(createdAt), msgID)
}

// AddMessage appends a message and updates the conversation's UpdatedAt
// and denormalized LastMessage in the same atomic batch, so the history
// and the preview can never diverge. Conflicting conversation updates
// are retried from a fresh read a bounded number of times.
func (s *Service) AddMessage(convID, senderID, content string, typ models.MessageType, opts ...MessageOptions) (*models.Message, error) {
	var mo MessageOptions
	if len(opts) > 0 {
		mo = opts[0]
	}
	if typ == "" {
		typ = models.MessageText
	}

	for attempt := 0; attempt < mutationRetries; attempt++ {
		c, ver, err := s.getConversation(convID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		m := &models.Message{
			ID:           ulid.Make().String(),
			Conversation: convID,
			SenderID:     senderID,
			Content:      content,
			CreatedAt:    now.UTC().UnixNano(),
			Type:         typ,
			ReadBy:       []string{senderID},
			ReplyToID:    mo.ReplyToID,
			Metadata:     mo.Metadata,
		}
		msgPayload, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}

		c.UpdatedAt = now.UnixMilli()
		c.LastMessage = m
		convPayload, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}

		b := store.NewBatch().
			Check(convKey(convID), ver).
			Put(messageKey(convID, m.CreatedAt, m.ID), msgPayload).
			Put(convKey(convID), convPayload)
		err = s.store.Apply(b)
		if err == nil {
			logger.Log.Info("message_added",
				zap.String("conversation", convID), zap.String("message", m.ID))
			return m, nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("add message to %s: retries exhausted: %w", convID, errs.ErrConflict)
}

// GetMessages returns a reverse-chronological page of messages plus a
// cursor resuming the walk. Fully paginating yields a complete,
// non-overlapping partition of the conversation's history.
func (s *Service) GetMessages(convID string, limit int, cursor string) ([]models.Message, string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	entries, next, err := s.store.Scan(store.ScanOptions{
		Prefix:  store.K("messages", convID),
		Limit:   limit,
		Cursor:  cursor,
		Reverse: true,
	})
	if err != nil {
		return nil, "", err
	}
	out := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		var m models.Message
		if err := json.Unmarshal(e.Value, &m); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	return out, next, nil
}

// MarkRead records that userID has seen the latest message. Idempotent:
// a second call for the same user is a no-op.
func (s *Service) MarkRead(convID, userID string) error {
	c, _, err := s.getConversation(convID)
	if err != nil {
		return err
	}
	if c.LastMessage == nil || c.LastMessage.IsReadBy(userID) {
		return nil
	}
	c.LastMessage.ReadBy = append(c.LastMessage.ReadBy, userID)
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.store.Put(convKey(convID), payload)
}

// AddReaction toggles userID's membership in reactions[emoji] on the
// given message and rewrites it at its exact composite key. The target
// is located by scanning the most recent reactionScanLimit messages; a
// hit outside that range reports errs.ErrNotFound.
func (s *Service) AddReaction(convID, messageID, userID, emoji string) (*models.Message, error) {
	if emoji == "" || userID == "" {
		return nil, fmt.Errorf("missing user or emoji")
	}
	entries, _, err := s.store.Scan(store.ScanOptions{
		Prefix:  store.K("messages", convID),
		Limit:   reactionScanLimit,
		Reverse: true,
	})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		var m models.Message
		if err := json.Unmarshal(e.Value, &m); err != nil {
			return nil, err
		}
		if m.ID != messageID {
			continue
		}
		toggleReaction(&m, userID, emoji)
		payload, err := json.Marshal(&m)
		if err != nil {
			return nil, err
		}
		if err := s.store.Put(e.Key, payload); err != nil {
			return nil, err
		}
		logger.Log.Info("reaction_toggled",
			zap.String("conversation", convID),
			zap.String("message", messageID),
			zap.String("emoji", emoji))
		return &m, nil
	}
	return nil, errs.ErrNotFound
}

// toggleReaction adds userID to the emoji's set when absent and removes
// it when present, dropping the emoji key once its set empties.
func toggleReaction(m *models.Message, userID, emoji string) {
	users := m.Reactions[emoji]
	for i, u := range users {
		if u == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(m.Reactions, emoji)
				if len(m.Reactions) == 0 {
					m.Reactions = nil
				}
			} else {
				m.Reactions[emoji] = users
			}
			return
		}
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	m.Reactions[emoji] = append(users, userID)
}
