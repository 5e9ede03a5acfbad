package http

import (
	_ "embed"
	"net/http"
)

//go:embed web/license.html
var licensePage []byte

// ServeLicensePage serves the license activation page
func ServeLicensePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(licensePage)
	}
}

// RedirectToLicense redirects root requests to the license page
func RedirectToLicense(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/license", http.StatusTemporaryRedirect)
}
