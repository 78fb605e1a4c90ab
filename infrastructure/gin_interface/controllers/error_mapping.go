package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"promo-video-api/application/ports/outbound"
	"promo-video-api/domain"
)

func statusForError(err error) int {
	var parseErr *outbound.LinkParseError
	var submitErr *domain.ProviderSubmitError
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPreconditionNotMet):
		return http.StatusUnprocessableEntity
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &submitErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger outbound.LoggerPort, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.Error(err, "request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
