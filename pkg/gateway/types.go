package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const principalKey contextKey = "auth_principal"

func withPrincipal(ctx context.Context, p *AuthPrincipal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func principalFrom(ctx context.Context) *AuthPrincipal {
	p, _ := ctx.Value(principalKey).(*AuthPrincipal)
	return p
}

// errorResponse is the uniform error envelope.
type errorResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{OK: false, Message: message})
}

func decodeJSON(r *http.Request, into any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}
