// Package chat owns multi-party conversations, their ordered message
// history, per-user and support-queue secondary indices, reactions and
// the support assignment workflow.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"fitdb/pkg/errs"
	"fitdb/pkg/logger"
	"fitdb/pkg/models"
	"fitdb/pkg/store"

	"github.com/google/uuid"
)

// mutationRetries bounds the re-read/retry loops around conflicting
// conversation updates.
const mutationRetries = 3

// Service implements conversation and message operations.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// New constructs the service.
func New(st *store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// SetClock overrides the service clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func convKey(id string) store.Key { return store.K("conversations", id) }

func userConvKey(userID, convID string) store.Key {
	return store.K("user_conversations", userID, convID)
}

func supportConvKey(convID string) store.Key { return store.K("support_conversations", convID) }

// CreateConversation writes the conversation record, one participant
// index entry per participant, and (for support conversations) the
// support-queue index entry in a single atomic batch. Either every key
// exists afterwards or none does.
func (s *Service) CreateConversation(typ models.ConversationType, participants []string, title string) (*models.Conversation, error) {
	switch typ {
	case models.ConversationDirect, models.ConversationGroup, models.ConversationSupport:
	default:
		return nil, fmt.Errorf("unknown conversation type %q", typ)
	}
	participants = dedupe(participants)
	if len(participants) == 0 {
		return nil, fmt.Errorf("conversation needs at least one participant")
	}

	nowMs := s.now().UnixMilli()
	c := &models.Conversation{
		ID:           uuid.NewString(),
		Type:         typ,
		Participants: participants,
		CreatedAt:    nowMs,
		UpdatedAt:    nowMs,
		Title:        title,
	}
	if typ == models.ConversationSupport {
		c.SupportStatus = models.SupportUnassigned
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	b := store.NewBatch().
		Check(convKey(c.ID), 0).
		Put(convKey(c.ID), payload)
	for _, p := range participants {
		b.Put(userConvKey(p, c.ID), []byte(c.ID))
	}
	if typ == models.ConversationSupport {
		b.Put(supportConvKey(c.ID), []byte(c.ID))
	}
	if err := s.store.Apply(b); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	logger.Log.Info("conversation_created",
		zap.String("conversation", c.ID),
		zap.String("type", string(typ)),
		zap.Int("participants", len(participants)))
	return c, nil
}

// GetConversation returns the record for id.
func (s *Service) GetConversation(id string) (*models.Conversation, error) {
	c, _, err := s.getConversation(id)
	return c, err
}

func (s *Service) getConversation(id string) (*models.Conversation, uint64, error) {
	e, err := s.store.Get(convKey(id))
	if err != nil {
		return nil, 0, err
	}
	var c models.Conversation
	if err := json.Unmarshal(e.Value, &c); err != nil {
		return nil, 0, err
	}
	return &c, e.Version, nil
}

// GetUserConversations returns every conversation the user participates
// in, sorted by UpdatedAt descending. Order is computed after the fetch;
// the participant index is not a sorted-by-activity index.
func (s *Service) GetUserConversations(userID string) ([]models.Conversation, error) {
	entries, _, err := s.store.Scan(store.ScanOptions{Prefix: store.K("user_conversations", userID)})
	if err != nil {
		return nil, err
	}
	return s.fetchConversations(entries)
}

// GetAllSupportConversations returns every support conversation, sorted
// by UpdatedAt descending, for staff triage.
func (s *Service) GetAllSupportConversations() ([]models.Conversation, error) {
	entries, _, err := s.store.Scan(store.ScanOptions{Prefix: store.K("support_conversations")})
	if err != nil {
		return nil, err
	}
	return s.fetchConversations(entries)
}

func (s *Service) fetchConversations(index []store.Entry) ([]models.Conversation, error) {
	out := make([]models.Conversation, 0, len(index))
	for _, e := range index {
		c, _, err := s.getConversation(string(e.Value))
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				logger.Log.Warn("dangling_conversation_index", zap.String("key", e.Key.String()))
				continue
			}
			return nil, err
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AssignSupport marks a support conversation as assigned to adminID,
// adding the admin to the participant set (and their index) when absent.
// Record and index move together or not at all.
func (s *Service) AssignSupport(convID, adminID string) (*models.Conversation, error) {
	for attempt := 0; attempt < mutationRetries; attempt++ {
		c, ver, err := s.getConversation(convID)
		if err != nil {
			return nil, err
		}
		if c.Type != models.ConversationSupport {
			return nil, errs.ErrNotSupportConversation
		}
		c.SupportStatus = models.SupportAssigned
		c.AssignedTo = adminID
		if !c.HasParticipant(adminID) {
			c.Participants = append(c.Participants, adminID)
		}
		c.UpdatedAt = s.now().UnixMilli()

		payload, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		b := store.NewBatch().
			Check(convKey(convID), ver).
			Put(convKey(convID), payload).
			Put(userConvKey(adminID, convID), []byte(convID))
		err = s.store.Apply(b)
		if err == nil {
			logger.Log.Info("support_assigned",
				zap.String("conversation", convID), zap.String("admin", adminID))
			return c, nil
		}
		if !errors.Is(err, errs.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("assign support %s: retries exhausted: %w", convID, errs.ErrConflict)
}

// ToggleLock flips the lock flag. Last writer wins; no index depends on
// this field.
func (s *Service) ToggleLock(convID string) (*models.Conversation, error) {
	return s.toggleFlag(convID, func(c *models.Conversation) { c.IsLocked = !c.IsLocked })
}

// ToggleHide flips the hidden flag. Last writer wins.
func (s *Service) ToggleHide(convID string) (*models.Conversation, error) {
	return s.toggleFlag(convID, func(c *models.Conversation) { c.IsHidden = !c.IsHidden })
}

func (s *Service) toggleFlag(convID string, mutate func(*models.Conversation)) (*models.Conversation, error) {
	c, _, err := s.getConversation(convID)
	if err != nil {
		return nil, err
	}
	mutate(c)
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(convKey(convID), payload); err != nil {
		return nil, err
	}
	return c, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
