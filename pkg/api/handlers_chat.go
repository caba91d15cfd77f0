package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"fitdb/pkg/chat"
	"fitdb/pkg/models"
)

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Type         models.ConversationType `json:"type"`
		Participants []string                `json:"participants"`
		Title        string                  `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// the caller is always a participant of what they create
	participants := append(in.Participants, userFromContext(r.Context()).ID)
	c, err := s.chat.CreateConversation(in.Type, participants, in.Title)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusCreated, c)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.chat.GetUserConversations(userFromContext(r.Context()).ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: convs})
}

func (s *Server) handleSupportQueue(w http.ResponseWriter, _ *http.Request) {
	convs, err := s.chat.GetAllSupportConversations()
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Conversations []models.Conversation `json:"conversations"`
	}{Conversations: convs})
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	var in struct {
		Content  string                 `json:"content"`
		Type     models.MessageType     `json:"type"`
		ReplyTo  string                 `json:"reply_to"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Content == "" {
		JSONError(w, http.StatusBadRequest, "content required")
		return
	}
	m, err := s.chat.AddMessage(convID, userFromContext(r.Context()).ID, in.Content, in.Type,
		chat.MessageOptions{ReplyToID: in.ReplyTo, Metadata: in.Metadata})
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusCreated, m)
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, next, err := s.chat.GetMessages(convID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Messages []models.Message `json:"messages"`
		Cursor   string           `json:"cursor,omitempty"`
	}{Messages: msgs, Cursor: next})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.MarkRead(mux.Vars(r)["id"], userFromContext(r.Context()).ID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAssignSupport(w http.ResponseWriter, r *http.Request) {
	convID := mux.Vars(r)["id"]
	var in struct {
		AdminID string `json:"admin_id"`
	}
	// empty body assigns to the caller
	_ = json.NewDecoder(r.Body).Decode(&in)
	adminID := in.AdminID
	if adminID == "" {
		adminID = userFromContext(r.Context()).ID
	}
	c, err := s.chat.AssignSupport(convID, adminID)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, c)
}

func (s *Server) handleToggleLock(w http.ResponseWriter, r *http.Request) {
	c, err := s.chat.ToggleLock(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, c)
}

func (s *Server) handleToggleHide(w http.ResponseWriter, r *http.Request) {
	c, err := s.chat.ToggleHide(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, c)
}

func (s *Server) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var in struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Emoji == "" {
		JSONError(w, http.StatusBadRequest, "emoji required")
		return
	}
	m, err := s.chat.AddReaction(vars["id"], vars["msgID"], userFromContext(r.Context()).ID, in.Emoji)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, m)
}
