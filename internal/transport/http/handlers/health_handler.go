package handlers

import (
	"net/http"

	"github.com/nyckye/starshop/backend/internal/transport/http/dto"
	httperrors "github.com/nyckye/starshop/backend/internal/transport/http/errors"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{
		Status:  "ok",
		Service: "starshop-api",
	})
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{
		Status:  "healthy",
		Service: "starshop-api",
	})
}
