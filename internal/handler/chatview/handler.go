package chatview

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clubhub-app/clubhub/backend/internal/service/session"
	"github.com/clubhub-app/clubhub/backend/pkg/utils"
)

// Handler bridges the browser UI to the chat session controller. It is a
// thin translation layer: every route maps onto one controller entry point.
type Handler struct {
	ctrl *session.Controller
}

// New creates the chat view handler.
func New(ctrl *session.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// RegisterRoutes mounts the chat view routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms/{roomID}/session", h.handleEnterRoom)
	r.Delete("/rooms/{roomID}/session", h.handleExitRoom)
	r.Get("/rooms/{roomID}/messages", h.handleListMessages)
	r.Post("/rooms/{roomID}/messages", h.handleSendMessage)
	r.Post("/rooms/{roomID}/history", h.handleLoadOlder)
	r.Get("/rooms/{roomID}/participants", h.handleParticipants)
	r.Post("/rooms/{roomID}/typing", h.handleTypingActivity)
	r.Delete("/rooms/{roomID}/typing", h.handleStopTyping)
	r.Get("/rooms/{roomID}/typing", h.handleTypingSummary)
	r.Get("/messages/{messageID}/edit", h.handleStartEditing)
	r.Put("/messages/{messageID}", h.handleSaveEdit)
	r.Delete("/messages/{messageID}", h.handleDeleteMessage)
	r.Post("/messages/{messageID}/replies", h.handleAddReply)
	r.Post("/messages/{messageID}/reactions", h.handleToggleReaction)
}

func (h *Handler) handleEnterRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	if err := h.ctrl.EnterRoom(r.Context(), roomID); err != nil {
		respondControllerError(w, err)
		return
	}

	sess, _ := h.ctrl.Session()
	utils.RespondJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleExitRoom(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ExitRoom()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	sess, ok := h.ctrl.Session()
	if !ok || sess.RoomID != roomID {
		utils.RespondError(w, http.StatusConflict, "room is not open")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"roomId":   roomID,
		"messages": h.ctrl.Messages(),
	})
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ctrl.SendMessage(r.Context(), payload.Body); err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"status": "sent"})
}

func (h *Handler) handleLoadOlder(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	sess, ok := h.ctrl.Session()
	if !ok || sess.RoomID != roomID {
		utils.RespondError(w, http.StatusConflict, "room is not open")
		return
	}

	added, err := h.ctrl.LoadOlderMessages(r.Context())
	if err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"added":    added,
		"messages": h.ctrl.Messages(),
	})
}

func (h *Handler) handleParticipants(w http.ResponseWriter, r *http.Request) {
	participants := h.ctrl.Participants()
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"participants": participants,
		"count":        len(participants),
	})
}

func (h *Handler) handleAddReply(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ctrl.ReplyToMessage(r.Context(), messageID, payload.Body); err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"status": "replied"})
}

func (h *Handler) handleStartEditing(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	body, err := h.ctrl.StartEditing(messageID)
	if err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"body": body})
}

func (h *Handler) handleSaveEdit(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ctrl.SaveEdit(r.Context(), messageID, payload.Body); err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	if err := h.ctrl.DeleteMessage(r.Context(), messageID); err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleToggleReaction(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var payload struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Emoji == "" {
		utils.RespondError(w, http.StatusBadRequest, "emoji is required")
		return
	}

	if err := h.ctrl.ToggleReaction(r.Context(), messageID, payload.Emoji); err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"reactions": h.ctrl.ReactionSummary(messageID),
	})
}

func (h *Handler) handleTypingActivity(w http.ResponseWriter, r *http.Request) {
	h.ctrl.NotifyTypingActivity()
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "noted"})
}

func (h *Handler) handleStopTyping(w http.ResponseWriter, r *http.Request) {
	h.ctrl.StopTyping()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) handleTypingSummary(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"summary": h.ctrl.TypingSummary(),
	})
}

func respondControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrMessageTooLong),
		errors.Is(err, session.ErrReplyTooLong):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotMember), errors.Is(err, session.ErrNotAuthor):
		utils.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrUnknownMessage):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNoActiveRoom):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	}
}
