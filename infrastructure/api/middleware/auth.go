package middleware

import "net/http"

// AuthConfig holds the API keys accepted by WriteProtect. An empty key set
// disables auth entirely — every request passes.
type AuthConfig struct {
	keys map[string]struct{}
}

// NewAuthConfigWithKeys builds an AuthConfig from a list of valid API keys.
func NewAuthConfigWithKeys(keys []string) AuthConfig {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return AuthConfig{keys: set}
}

func (c AuthConfig) enabled() bool { return len(c.keys) > 0 }

func (c AuthConfig) valid(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// WriteProtect gates mutating requests (anything but GET/HEAD/OPTIONS) on a
// valid X-API-KEY header. Read-only methods always pass.
func WriteProtect(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.enabled() || isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-KEY")
			if !config.valid(key) {
				http.Error(w, NewAuthenticationError("missing or invalid API key").Error(), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
