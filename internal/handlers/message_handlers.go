package handlers

import (
	"net/http"
)

// SendMessageRequest carries the content of a new message or reply. Text
// and image are both optional but the service rejects a message with
// neither.
type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"` // base64 payload, optionally a data URI
}

// EditMessageRequest carries the replacement text for an edit.
type EditMessageRequest struct {
	Text string `json:"text"`
}

// HandleGetUsers lists every other user for the conversation sidebar.
func (s *Server) HandleGetUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actorID(w, r)
		if !ok {
			return
		}

		users, err := s.Users.ListOtherUsers(r.Context(), actor)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, users)
	}
}

// HandleGetConversation returns the full conversation with the user in the
// path, tombstoned messages included.
func (s *Server) HandleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actorID(w, r)
		if !ok {
			return
		}
		peerID, ok := s.pathID(w, r, "id")
		if !ok {
			return
		}

		messages, err := s.Service.Conversation(r.Context(), actor, peerID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, messages)
	}
}

// HandleSendMessage creates a new message addressed to the user in the path.
func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actorID(w, r)
		if !ok {
			return
		}
		receiverID, ok := s.pathID(w, r, "id")
		if !ok {
			return
		}
		var req SendMessageRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		created, err := s.Service.Send(r.Context(), actor, receiverID, req.Text, req.Image)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, created)
	}
}

// HandleReplyMessage creates a reply to the message in the path; the reply
// routes back to whoever sent the original.
func (s *Server) HandleReplyMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actorID(w, r)
		if !ok {
			return
		}
		originalID, ok := s.pathID(w, r, "messageId")
		if !ok {
			return
		}
		var req SendMessageRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		created, err := s.Service.Reply(r.Context(), originalID, actor, req.Text, req.Image)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, created)
	}
}

// HandleEditMessage replaces the text of a message the actor sent.
func (s *Server) HandleEditMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actorID(w, r)
		if !ok {
			return
		}
		messageID, ok := s.pathID(w, r, "messageId")
		if !ok {
			return
		}
		var req EditMessageRequest
		if !s.decodeBody(w, r, &req) {
			return
		}

		updated, err := s.Service.Edit(r.Context(), messageID, actor, req.Text)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, updated)
	}
}

// HandleDeleteMessage tombstones a message the actor sent.
func (s *Server) HandleDeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actorID(w, r)
		if !ok {
			return
		}
		messageID, ok := s.pathID(w, r, "messageId")
		if !ok {
			return
		}

		updated, err := s.Service.Delete(r.Context(), messageID, actor)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, updated)
	}
}

// HandleMarkMessageRead records the actor's read receipt on a message
// addressed to them.
func (s *Server) HandleMarkMessageRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actorID(w, r)
		if !ok {
			return
		}
		messageID, ok := s.pathID(w, r, "messageId")
		if !ok {
			return
		}

		updated, err := s.Service.MarkRead(r.Context(), messageID, actor)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, updated)
	}
}
