package event_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"rallysphere/internal/auth"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"rallysphere/internal/sse"
	"time"
)

type ClubAccess interface {
	CanViewClub(ctx context.Context, session models.Session, clubID string) (bool, error)
}

// SSEHandler streams live event changes to connected clients. Updates of
// private clubs only reach their members.
type SSEHandler struct {
	Feed   *sse.EventFeed
	Access ClubAccess
	Logger *logger.Logger
}

// Stream handles GET /api/events/stream?club_id=. Without club_id the
// client receives updates of every club it may see.
func (h *SSEHandler) Stream(w http.ResponseWriter, r *http.Request) {
	clubID := r.URL.Query().Get("club_id")
	session := auth.SessionFrom(r.Context())
	visible := h.visibility(session)

	if clubID != "" && !visible(r.Context(), clubID) {
		h.Logger.LogSecurity("STREAM_DENIED", fmt.Sprintf("user %s on club %s", session.UserID, clubID))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.Logger.Debug("SSE", fmt.Sprintf("Could not clear write deadline: %v", err))
	}
	setupSSEHeaders(w)

	ctx := r.Context()
	updates := h.Feed.Subscribe(ctx, clubID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"club_id\":%q}\n\n", clubID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to event feed for club %q", clubID))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for club %q", clubID))
				return
			}
			if !visible(ctx, update.Event.ClubID) {
				continue
			}

			jsonData, err := json.Marshal(update)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize event update: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from event feed for club %q", clubID))
			return
		}
	}
}

// visibility caches per-club answers for the lifetime of one stream.
// Lookup failures hide the club.
func (h *SSEHandler) visibility(session models.Session) func(context.Context, string) bool {
	if h.Access == nil {
		return func(context.Context, string) bool { return true }
	}
	cache := make(map[string]bool)
	return func(ctx context.Context, clubID string) bool {
		if ok, seen := cache[clubID]; seen {
			return ok
		}
		ok, err := h.Access.CanViewClub(ctx, session, clubID)
		if err != nil {
			h.Logger.Warn("SSE", fmt.Sprintf("Visibility of club %s unknown: %v", clubID, err))
			return false
		}
		cache[clubID] = ok
		return ok
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
