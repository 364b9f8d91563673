package server

import (
	"encoding/json"
	"net/http"

	"youbble/core/apperr"
	"youbble/logger"
)

// errorBody 错误响应体，kind 供前端区分失败的规则
type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// writeError maps err onto a status code and a client-safe message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("kind", string(kind)),
			logger.ErrorField(err))
	}
	writeJSON(w, status, errorBody{
		Error:     apperr.PublicMessage(err),
		Kind:      string(kind),
		Retryable: kind.Retryable(),
	})
}
