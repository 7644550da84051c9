package httpadapter

import (
    "context"
    "encoding/json"
    "net/http"

    "github.com/google/uuid"
)

type ctxKey struct{}

func NewRequestID() string { return "req_" + uuid.NewString() }

// withRequestID tags each request with an id, reusing the caller's X-Request-ID.
func withRequestID(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        id := r.Header.Get("X-Request-ID")
        if id == "" {
            id = NewRequestID()
        }
        w.Header().Set("X-Request-ID", id)
        next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
    })
}

func requestID(r *http.Request) string {
    id, _ := r.Context().Value(ctxKey{}).(string)
    return id
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("content-type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
    dec := json.NewDecoder(r.Body)
    dec.DisallowUnknownFields()
    return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
    WriteJSON(w, status, map[string]any{
        "request_id": requestID(r),
        "error":      map[string]any{"code": code, "message": message},
    })
}
