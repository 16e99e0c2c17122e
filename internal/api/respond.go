package api

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/model"
	"github.com/sells-group/agristat/internal/snapshot"
)

// errReadOnly is returned for writes when facts have no persistent store.
var errReadOnly = eris.New("facts are read-only: the data source has no database to write to")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case eris.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, model.ErrInvalidFilter):
		return http.StatusBadRequest
	case eris.Is(err, snapshot.ErrNoSnapshot):
		return http.StatusServiceUnavailable
	case eris.Is(err, errReadOnly):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
