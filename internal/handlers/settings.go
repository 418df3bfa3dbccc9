package handlers

import (
	"net/http"

	"storefront-payments/internal/logger"
)

// SettingsHandler отдаёт и сохраняет правила доставки
type SettingsHandler struct {
	settings SettingsService
	log      *logger.Logger
}

// NewSettingsHandler создает обработчик настроек
func NewSettingsHandler(settings SettingsService, log *logger.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, log: log}
}

// GetShipping возвращает действующие правила доставки
func (h *SettingsHandler) GetShipping(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.GetShippingSettings(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get shipping settings")
		return
	}
	writeJSONResponse(w, http.StatusOK, settings)
}

// UpdateShipping сохраняет правила доставки. Поля, которых нет в теле, остаются прежними.
func (h *SettingsHandler) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	current, err := h.settings.GetShippingSettings(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to get shipping settings")
		return
	}

	rules := current.Shipping
	if err := decodeJSON(w, r, &rules); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := h.settings.UpdateShippingRules(r.Context(), rules)
	if err != nil {
		writeServiceError(w, h.log, err, "Failed to update shipping settings")
		return
	}

	h.log.Info("Shipping settings updated")
	writeJSONResponse(w, http.StatusOK, settings)
}
