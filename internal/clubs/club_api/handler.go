package club_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/auth"
	"rallysphere/internal/clubs"
	"rallysphere/internal/logger"
	"rallysphere/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	ClubService *clubs.Service
	Translator  utils.Localizer
	Logger      *logger.Logger
}

func (h *Handler) ListClubs(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("ListClubs: user=%s", session.UserID))

	list, err := h.ClubService.ListClubs(r.Context(), session)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListClubs: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, list)
}

func (h *Handler) CreateClub(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateClub: user=%s", session.UserID))

	var form clubs.CreateClubForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateClub: failed to decode request body: %v", err))
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid JSON: "+err.Error()))
		return
	}

	club, err := h.ClubService.CreateClub(r.Context(), session, form)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusCreated, "status.club_created", nil, club)
	h.Logger.Info("API", "CreateClub: created "+club.ID)
}

func (h *Handler) GetClub(w http.ResponseWriter, r *http.Request) {
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("GetClub: clubId=%s", clubID))

	club, err := h.ClubService.GetClub(r.Context(), clubID)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, club)
}

func (h *Handler) JoinClub(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("JoinClub: clubId=%s user=%s", clubID, session.UserID))

	club, err := h.ClubService.JoinClub(r.Context(), session, clubID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("JoinClub: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.club_joined", map[string]any{"Name": club.Name}, club)
}

func (h *Handler) LeaveClub(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("LeaveClub: clubId=%s user=%s", clubID, session.UserID))

	club, err := h.ClubService.LeaveClub(r.Context(), session, clubID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("LeaveClub: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.club_left", map[string]any{"Name": club.Name}, club)
}

func (h *Handler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("AddAdmin: clubId=%s by=%s", clubID, session.UserID))

	var form clubs.AddAdminForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid JSON: "+err.Error()))
		return
	}

	club, err := h.ClubService.AddAdmin(r.Context(), session, clubID, form)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, club)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("Stats: clubId=%s by=%s", clubID, session.UserID))

	stats, err := h.ClubService.Stats(r.Context(), session, clubID)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, stats)
}

// Calendar serves the club's events as text/calendar.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("Calendar: clubId=%s", clubID))

	ics, err := h.ClubService.Calendar(r.Context(), session, clubID)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clubID+".ics"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(ics)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Calendar: write failed: %v", err))
	}
}
