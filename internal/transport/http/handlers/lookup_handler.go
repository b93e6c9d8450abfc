package handlers

import (
	"errors"
	"net/http"

	purchasesvc "github.com/nyckye/starshop/backend/internal/services/purchase"
	"github.com/nyckye/starshop/backend/internal/transport/http/dto"
	httperrors "github.com/nyckye/starshop/backend/internal/transport/http/errors"
)

type LookupHandler struct {
	service *purchasesvc.Service
}

func NewLookupHandler(service *purchasesvc.Service) *LookupHandler {
	return &LookupHandler{service: service}
}

// CheckUser answers whether a username can receive stars. Unknown
// recipients are a 200 with found=false, not an error.
func (h *LookupHandler) CheckUser(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "LOOKUP_SERVICE_UNAVAILABLE", "lookup service is unavailable")
		return
	}

	var req dto.CheckUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	result, err := h.service.CheckRecipient(r.Context(), req.Username, req.UserID, clientIPFromRequest(r))
	if err != nil {
		if errors.Is(err, purchasesvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "username is required")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.UserProfileResponse{
		Found:     result.Found,
		Username:  result.Username,
		FirstName: result.FirstName,
		LastName:  result.LastName,
		PhotoURL:  result.PhotoURL,
		IsPremium: result.IsPremium,
	})
}
