package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"licbind/pkg/contracts"
	v1 "licbind/pkg/contracts/api/v1"
)

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, v1.HealthResponse{
		Status:    "healthy",
		Version:   contracts.Version,
		Timestamp: time.Now().UTC(),
	})
}
