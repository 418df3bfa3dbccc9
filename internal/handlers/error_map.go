package handlers

import (
	"net/http"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/logger"
)

// errorWriter пишет тело ошибки в формате конкретного маршрута
type errorWriter func(w http.ResponseWriter, statusCode int, message, code string)

// writeServiceError переводит ошибку сервиса в HTTP ответ.
// Отказы бизнес-правил отдаются клиенту с кодом причины, остальное только в лог.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	writeMappedError(w, log, err, internalMessage, writeCodedError)
}

func writeMappedError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string, write errorWriter) {
	code := apperror.CodeOf(err)
	switch {
	case apperror.Is(err, apperror.KindNotFound):
		write(w, http.StatusNotFound, err.Error(), code)
	case apperror.Is(err, apperror.KindValidation),
		apperror.Is(err, apperror.KindConflict),
		apperror.Is(err, apperror.KindSignature):
		write(w, http.StatusBadRequest, err.Error(), code)
	case apperror.Is(err, apperror.KindGateway):
		if log != nil {
			log.WithError(err).WithField("code", code).Error(internalMessage)
		}
		// текст провайдера остаётся в логе, клиент получает сообщение сервиса
		write(w, http.StatusBadGateway, err.Error(), code)
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		write(w, http.StatusInternalServerError, internalMessage, "")
	}
}
