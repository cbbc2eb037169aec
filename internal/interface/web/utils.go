package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pi-apps/a2u/internal/core/application"
	"github.com/pi-apps/a2u/internal/core/domain"
	"github.com/pi-apps/a2u/pkg/a2u"
	"github.com/pi-apps/a2u/pkg/pi"
	"github.com/pi-apps/a2u/pkg/stellar"
)

func errorStatus(err error) int {
	var (
		svcErr *pi.ServiceError
		bcErr  *stellar.BlockchainError
	)
	switch {
	case errors.Is(err, domain.ErrPayoutNotFound):
		return http.StatusNotFound
	case errors.Is(err, a2u.ErrInvalidPaymentArgs):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrPayoutClosed):
		return http.StatusConflict
	case errors.Is(err, a2u.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.As(err, &svcErr), errors.As(err, &bcErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	// nolint:all
	c.Error(err)
	c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
}
