package event_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/auth"
	"rallysphere/internal/events"
	"rallysphere/internal/logger"
	"rallysphere/internal/membership"
	"rallysphere/internal/utils"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxCoverBytes bounds the multipart form of a create request.
const maxCoverBytes = 10 << 20

type Handler struct {
	EventService *events.Service
	Translator   utils.Localizer
	Logger       *logger.Logger
	Now          func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// ListEvents handles GET /api/events?club_id=&timeframe=&joined=&q=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	q := r.URL.Query()
	h.Logger.Info("API", fmt.Sprintf("ListEvents: club=%q timeframe=%q", q.Get("club_id"), q.Get("timeframe")))

	query := events.Query{Timeframe: q.Get("timeframe"), Search: q.Get("q")}
	switch query.Timeframe {
	case "", events.TimeframeAll, events.TimeframeUpcoming, events.TimeframePast:
	default:
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("timeframe", "must be one of upcoming past all"))
		return
	}
	if joined, _ := strconv.ParseBool(q.Get("joined")); joined {
		query.JoinedBy = session.UserID
	}

	list, err := h.EventService.ListEvents(r.Context(), session, q.Get("club_id"))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListEvents: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}

	filtered := events.FilterEvents(list, query, h.now())
	h.Logger.Debug("API", fmt.Sprintf("ListEvents: %d of %d events match", len(filtered), len(list)))
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, filtered)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("GetEvent: eventId=%s", eventID))

	event, err := h.EventService.GetEvent(r.Context(), session, eventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetEvent: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, event)
}

// CreateEvent accepts either a JSON body or a multipart form with an
// "event" JSON part and an optional "cover" file.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateEvent: user=%s", session.UserID))

	var form events.CreateEventForm
	var cover *events.Upload

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxCoverBytes+(1<<20))
		if err := r.ParseMultipartForm(maxCoverBytes); err != nil {
			h.Logger.Warn("API", fmt.Sprintf("CreateEvent: bad multipart body: %v", err))
			_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid multipart form"))
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("event")), &form); err != nil {
			_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("event", "invalid JSON: "+err.Error()))
			return
		}
		if file, header, err := r.FormFile("cover"); err == nil {
			defer file.Close()
			cover = &events.Upload{Filename: header.Filename, Content: file}
		}
	} else if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateEvent: failed to decode request body: %v", err))
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid JSON: "+err.Error()))
		return
	}

	event, err := h.EventService.CreateEvent(r.Context(), session, form, cover)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateEvent: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}

	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusCreated, "status.event_created", nil, event)
	h.Logger.Info("API", "CreateEvent: created "+event.ID)
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("UpdateEvent: eventId=%s user=%s", eventID, session.UserID))

	var form events.UpdateEventForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid JSON: "+err.Error()))
		return
	}

	event, err := h.EventService.UpdateEvent(r.Context(), session, eventID, form)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateEvent: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.event_updated", nil, event)
}

func (h *Handler) JoinEvent(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("JoinEvent: eventId=%s user=%s", eventID, session.UserID))

	change, err := h.EventService.Join(r.Context(), session, eventID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("JoinEvent: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	h.writeChange(w, r, change)
}

func (h *Handler) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("LeaveEvent: eventId=%s user=%s", eventID, session.UserID))

	change, err := h.EventService.Leave(r.Context(), session, eventID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("LeaveEvent: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	h.writeChange(w, r, change)
}

func (h *Handler) writeChange(w http.ResponseWriter, r *http.Request, change *events.MembershipChange) {
	key := "status." + string(change.Outcome)
	tmpl := map[string]any{"Title": change.Event.Title}
	if change.Outcome == membership.OutcomeWaitlisted {
		tmpl["Position"] = change.WaitlistPosition
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, key, tmpl, change)
}

// Checkout opens a Stripe Checkout page for a paid event.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("Checkout: eventId=%s user=%s", eventID, session.UserID))

	checkout, err := h.EventService.Checkout(r.Context(), session, eventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Checkout: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusCreated, "status.checkout_ready", nil, checkout)
}

// Pass serves the caller's QR attendee pass.
func (h *Handler) Pass(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("Pass: eventId=%s user=%s", eventID, session.UserID))

	png, err := h.EventService.Pass(r.Context(), session, eventID)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Pass: write failed: %v", err))
	}
}

type verifyPassRequest struct {
	Token string `json:"token"`
}

func (h *Handler) VerifyPass(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("VerifyPass: eventId=%s by=%s", eventID, session.UserID))

	var req verifyPassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("token", "is required"))
		return
	}

	check, err := h.EventService.VerifyPass(r.Context(), session, eventID, req.Token)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, check)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
