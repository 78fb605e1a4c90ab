package dto

import (
	"time"

	"promo-video-api/domain"
)

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

type TransactionResponse struct {
	ID            string    `json:"id"`
	Amount        int64     `json:"amount"`
	ReasonCode    string    `json:"reason_code"`
	ReasonRef     string    `json:"reason_ref"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

func NewTransactionResponse(tx *domain.CreditTransaction) TransactionResponse {
	return TransactionResponse{
		ID:            tx.ID,
		Amount:        tx.Amount,
		ReasonCode:    tx.ReasonCode,
		ReasonRef:     tx.ReasonRef,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		CreatedAt:     tx.CreatedAt,
	}
}
