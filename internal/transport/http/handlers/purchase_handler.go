package handlers

import (
	"errors"
	"net/http"

	"github.com/nyckye/starshop/backend/internal/domain/enums"
	purchasesvc "github.com/nyckye/starshop/backend/internal/services/purchase"
	"github.com/nyckye/starshop/backend/internal/transport/http/dto"
	httperrors "github.com/nyckye/starshop/backend/internal/transport/http/errors"
)

type PurchaseHandler struct {
	service *purchasesvc.Service
}

func NewPurchaseHandler(service *purchasesvc.Service) *PurchaseHandler {
	return &PurchaseHandler{service: service}
}

func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PURCHASE_SERVICE_UNAVAILABLE", "purchase service is unavailable")
		return
	}

	var req dto.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
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

	result, err := h.service.Buy(r.Context(), purchasesvc.BuyRequest{
		Username:       req.Username,
		Quantity:       req.Amount,
		Method:         method,
		InitData:       req.InitData,
		ClaimedBuyerID: req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		ClientIP:       clientIPFromRequest(r),
	})
	if err != nil {
		handlePurchaseError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PurchaseResponse{
		Success:   result.Success,
		Replayed:  result.Replayed,
		Recipient: result.Recipient,
		Stars:     result.Quantity,
		AmountTON: result.AmountTON,
		Memo:      result.Memo,
		TxHash:    result.TxHash,
		TxLink:    result.TxLink,
		Error:     result.ErrorCode,
	})
}

func (h *PurchaseHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PURCHASE_SERVICE_UNAVAILABLE", "purchase service is unavailable")
		return
	}

	initData := r.Header.Get("X-Telegram-Init-Data")
	records, err := h.service.History(r.Context(), initData)
	if err != nil {
		handlePurchaseError(w, err)
		return
	}

	items := make([]dto.PurchaseHistoryItem, 0, len(records))
	for _, record := range records {
		item := dto.PurchaseHistoryItem{
			Recipient:     record.Recipient,
			Stars:         record.Quantity,
			PaymentMethod: record.PaymentMethod,
			Status:        record.Status,
			CreatedAt:     record.CreatedAt,
		}
		if record.TxHash != nil {
			item.TxHash = *record.TxHash
		}
		if record.TxLink != nil {
			item.TxLink = *record.TxLink
		}
		items = append(items, item)
	}

	httperrors.Write(w, http.StatusOK, dto.PurchaseHistoryResponse{Purchases: items})
}

func handlePurchaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, purchasesvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, purchasesvc.ErrAuthentication):
		writeUnauthorized(w, "UNAUTHORIZED", "authentication failed")
	case errors.Is(err, purchasesvc.ErrDuplicatePending):
		writeConflict(w, "DUPLICATE_INTENT", "a purchase with this key is already in flight")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
