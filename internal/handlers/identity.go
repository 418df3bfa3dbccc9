package handlers

import (
	"context"
	"net/http"
	"strings"

	"storefront-payments/internal/models"

	"github.com/google/uuid"
)

// Заголовки с уже проверенной личностью вызывающего
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserAdmin = "X-User-Admin"
)

type callerKey struct{}

type callerState struct {
	caller  models.Caller
	present bool
	invalid bool
}

// Identity читает личность вызывающего из заголовков и кладёт её в контекст запроса
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := callerState{}
		if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil || id == uuid.Nil {
				state.invalid = true
			} else {
				state.present = true
				state.caller = models.Caller{
					UserID:  id,
					IsAdmin: strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserAdmin)), "true"),
				}
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, state)))
	})
}

// CallerFrom возвращает вызывающего, если он известен
func CallerFrom(ctx context.Context) (models.Caller, bool) {
	state, _ := ctx.Value(callerKey{}).(callerState)
	return state.caller, state.present
}

// RequireUser пропускает только запросы с пользователем
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, _ := r.Context().Value(callerKey{}).(callerState)
		if state.invalid {
			writeErrorResponse(w, http.StatusUnauthorized, "Not authorized, invalid user")
			return
		}
		if !state.present {
			writeErrorResponse(w, http.StatusUnauthorized, "Not authorized, no user")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin пропускает только администраторов
func RequireAdmin(next http.Handler) http.Handler {
	return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, _ := CallerFrom(r.Context()); !caller.IsAdmin {
			writeErrorResponse(w, http.StatusForbidden, "Not authorized as an admin")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// canAccessOrder сообщает, может ли вызывающий видеть заказ
func canAccessOrder(caller models.Caller, order *models.Order) bool {
	return caller.IsAdmin || order.User == caller.UserID
}
