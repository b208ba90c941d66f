package response

import (
	"net/http"

	"github.com/go-chi/render"
)

// Envelope is the body of every response:
// {"success":true,"data":...} or {"success":false,"message":"...","code":"..."}
type Envelope struct {
	Success   bool              `json:"success"`
	Data      any               `json:"data,omitempty"`
	Message   string            `json:"message,omitempty"`
	Code      string            `json:"code,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func Data(w http.ResponseWriter, r *http.Request, status int, payload any) {
	JSON(w, r, status, Envelope{Success: true, Data: payload})
}

func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string, requestID string) {
	JSON(w, r, status, Envelope{
		Success:   false,
		Message:   message,
		Code:      code,
		Meta:      meta,
		RequestID: requestID,
	})
}
