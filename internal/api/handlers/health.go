package handlers

import (
	"context"
	"net/http"
	"time"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type SelfTester interface {
	SelfTest() error
}

type HealthHandler struct {
	db     Pinger
	engine SelfTester
}

func NewHealthHandler(db Pinger, engine SelfTester) *HealthHandler {
	return &HealthHandler{db: db, engine: engine}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unhealthy"
		status = "degraded"
	} else {
		checks["database"] = "healthy"
	}

	if err := h.engine.SelfTest(); err != nil {
		checks["encryption"] = "unhealthy"
		status = "degraded"
	} else {
		checks["encryption"] = "healthy"
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, response)
}
