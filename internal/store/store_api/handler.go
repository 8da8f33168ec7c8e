package store_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/auth"
	"rallysphere/internal/logger"
	"rallysphere/internal/store"
	"rallysphere/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	StoreService *store.Service
	Translator   utils.Localizer
	Logger       *logger.Logger
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("ListItems: clubId=%s", clubID))

	items, err := h.StoreService.ListItems(r.Context(), clubID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListItems: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, items)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("CreateItem: clubId=%s by=%s", clubID, session.UserID))

	var form store.CreateItemForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateItem: failed to decode request body: %v", err))
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid JSON: "+err.Error()))
		return
	}

	item, err := h.StoreService.CreateItem(r.Context(), session, clubID, form)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusCreated, "status.item_created", map[string]any{"Name": item.Name}, item)
}

// PlaceOrder handles POST /api/orders and returns the checkout URL to pay it.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("PlaceOrder: user=%s", session.UserID))

	var form store.PlaceOrderForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceOrder: failed to decode request body: %v", err))
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid JSON: "+err.Error()))
		return
	}

	placed, err := h.StoreService.PlaceOrder(r.Context(), session, form)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("PlaceOrder: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusCreated, "status.order_placed", nil, placed)
	h.Logger.Info("API", "PlaceOrder: created "+placed.Order.ID)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("UpdateStatus: orderId=%s by=%s", orderID, session.UserID))

	var form store.UpdateStatusForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("body", "invalid JSON: "+err.Error()))
		return
	}

	order, err := h.StoreService.UpdateStatus(r.Context(), session, orderID, form)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateStatus: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.order_updated", map[string]any{"Status": string(order.Status)}, order)
}

func (h *Handler) ListClubOrders(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	clubID := chi.URLParam(r, "clubId")
	h.Logger.Info("API", fmt.Sprintf("ListClubOrders: clubId=%s by=%s", clubID, session.UserID))

	orders, err := h.StoreService.ListClubOrders(r.Context(), session, clubID)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, orders)
}

func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("ListMyOrders: user=%s", session.UserID))

	orders, err := h.StoreService.ListMyOrders(r.Context(), session)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusOK, "status.ok", nil, orders)
}
