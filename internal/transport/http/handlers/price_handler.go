package handlers

import (
	"net/http"

	"github.com/nyckye/starshop/backend/internal/domain/enums"
	"github.com/nyckye/starshop/backend/internal/domain/rules"
	"github.com/nyckye/starshop/backend/internal/transport/http/dto"
	httperrors "github.com/nyckye/starshop/backend/internal/transport/http/errors"
)

type PriceHandler struct {
	minStars int
	maxStars int
}

func NewPriceHandler(minStars, maxStars int) *PriceHandler {
	return &PriceHandler{minStars: minStars, maxStars: maxStars}
}

func (h *PriceHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req dto.CalculatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	if !rules.QuantityInBounds(req.Amount, h.minStars, h.maxStars) {
		writeBadRequest(w, "VALIDATION_ERROR", "star amount is out of range")
		return
	}

	method := enums.PaymentMethodTON
	if req.PaymentMethod != "" {
		parsed, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", "unknown payment method")
			return
		}
		method = parsed
	}

	price, err := rules.PriceFor(req.Amount, method)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "unknown payment method")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PriceCalculation{
		Stars:         price.Stars,
		Price:         price.Value,
		Currency:      price.Currency,
		PaymentMethod: string(price.Method),
	})
}
