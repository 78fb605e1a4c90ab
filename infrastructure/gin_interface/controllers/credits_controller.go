package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"promo-video-api/application/ports/inbound"
	"promo-video-api/application/ports/outbound"
	"promo-video-api/infrastructure/gin_interface/dto"
	"promo-video-api/middleware"
)

type CreditsController interface {
	GetBalance(c *gin.Context)
	GetHistory(c *gin.Context)
	RegisterRoutes(g *gin.Engine)
}

type creditsController struct {
	logger outbound.LoggerPort
	ledger inbound.CreditLedgerPort
}

func NewCreditsController(logger outbound.LoggerPort, ledger inbound.CreditLedgerPort) CreditsController {
	return &creditsController{
		logger: logger,
		ledger: ledger,
	}
}

func (cc *creditsController) GetBalance(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	balance, err := cc.ledger.Balance(c, userID)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.BalanceResponse{Balance: balance})
}

func (cc *creditsController) GetHistory(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	txs, err := cc.ledger.History(c, userID, limit)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}

	resp := dto.HistoryResponse{Transactions: make([]dto.TransactionResponse, 0, len(txs))}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, dto.NewTransactionResponse(tx))
	}
	c.JSON(http.StatusOK, resp)
}

func (cc *creditsController) RegisterRoutes(g *gin.Engine) {
	g.GET("/credits/balance", cc.GetBalance)
	g.GET("/credits/history", cc.GetHistory)
}
