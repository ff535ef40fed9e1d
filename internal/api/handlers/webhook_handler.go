package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"hivehook/internal/engine/ingest"
	"hivehook/internal/pkg/errors"
)

type Processor interface {
	Process(ctx context.Context, d ingest.Delivery) (*ingest.Result, error)
}

// WebhookHandler receives GitHub deliveries and hands the raw bytes to the
// ingestion pipeline.
type WebhookHandler struct {
	pipeline     Processor
	maxBodyBytes int64
}

func NewWebhookHandler(pipeline Processor, maxBodyBytes int64) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, maxBodyBytes: maxBodyBytes}
}

type webhookResponse struct {
	Success bool `json:"success"`
	*ingest.Result
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	l := hlog.FromRequest(r)

	// One extra byte tells an oversized body apart from one exactly at the limit.
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		errors.Write(w, l, errors.Validation("Unable to read request body"))
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		errors.Write(w, l, errors.Validation("Request body too large"))
		return
	}

	res, err := h.pipeline.Process(r.Context(), ingest.DeliveryFromRequest(r.Header, body))
	if err != nil {
		errors.Write(w, l, err)
		return
	}

	writeJSON(w, http.StatusAccepted, webhookResponse{Success: true, Result: res})
}
