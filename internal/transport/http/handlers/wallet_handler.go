package handlers

import (
	"context"
	"net/http"

	"github.com/nyckye/starshop/backend/internal/transport/http/dto"
	httperrors "github.com/nyckye/starshop/backend/internal/transport/http/errors"
)

type BalanceProvider interface {
	Balance(ctx context.Context) (float64, error)
}

type WalletHandler struct {
	wallet BalanceProvider
}

func NewWalletHandler(wallet BalanceProvider) *WalletHandler {
	return &WalletHandler{wallet: wallet}
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if h.wallet == nil {
		writeInternal(w, "WALLET_UNAVAILABLE", "wallet is unavailable")
		return
	}

	balance, err := h.wallet.Balance(r.Context())
	if err != nil {
		writeInternal(w, "WALLET_UNAVAILABLE", "wallet balance is unavailable")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.WalletBalanceResponse{
		Balance:  balance,
		Currency: "TON",
	})
}
