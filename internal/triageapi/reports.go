package triageapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// reportRequest is the body of POST /api/v1/reports.
type reportRequest struct {
	Text      *string          `json:"text"`
	InputType triage.InputType `json:"input_type,omitempty"`
}

type submitResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

func (a *API) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "report too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.InputType == "" {
		req.InputType = triage.InputText
	}

	sub, err := a.svc.Submit(r.Context(), triage.Input{Text: *req.Text, Type: req.InputType})
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to submit report")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("sentinel.triage.id", sub.ID),
		attribute.Bool("sentinel.triage.skipped", sub.Skipped),
	)

	status := "accepted"
	if sub.Skipped {
		status = "skipped"
	}
	writeJSON(w, http.StatusAccepted, submitResponse{ID: sub.ID, Status: status, Reason: sub.Reason, Skipped: sub.Skipped})
}
