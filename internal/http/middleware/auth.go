package middlewarex

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"payswitch/internal/config"
)

// MerchantHeader names the merchant a dispatch call acts for.
const MerchantHeader = "X-Merchant-Id"

// AdminAuth guards operator routes with the static admin token.
func AdminAuth(cfg config.Cfg) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin := r.Header.Get("X-Admin-Token")
			if cfg.Sec.AdminToken == "" || !equal(admin, cfg.Sec.AdminToken) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ServiceAuth guards internal dispatch routes. Callers present the service
// token as a bearer credential and name the merchant in X-Merchant-Id.
func ServiceAuth(cfg config.Cfg) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(auth, "Bearer ")
			if cfg.Sec.ServiceToken == "" || !equal(token, cfg.Sec.ServiceToken) {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			merchantID := strings.TrimSpace(r.Header.Get(MerchantHeader))
			if merchantID == "" {
				http.Error(w, "missing "+MerchantHeader, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithMerchantID(r.Context(), merchantID)))
		})
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
