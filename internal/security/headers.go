package security

import (
	"net/http"
	"strconv"
)

// baseHeaders go on every response. The API serves JSON to a known
// frontend, so framing and sniffing are denied outright.
var baseHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
	"Permissions-Policy":     "geolocation=(), microphone=()",
}

// Headers attaches baseline hardening headers to responses.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

// Middleware sets the headers on every response when enabled.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		for name, value := range baseHeaders {
			w.Header().Set(name, value)
		}
		// HSTS only when the request actually arrived over TLS; shop LANs
		// often run the register API over plain HTTP behind a local proxy.
		if h.EnableHSTS && r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", h.hstsValue())
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 31536000
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}
