package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pi-apps/a2u/internal/core/application"
	"github.com/pi-apps/a2u/internal/core/domain"
	"github.com/pi-apps/a2u/internal/interface/web/types"
)

func (s *service) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, types.Health{
		Status:  "ok",
		Version: s.buildInfo.Version,
		Commit:  s.buildInfo.Commit,
	})
}

func (s *service) createPayout(c *gin.Context) {
	var req types.PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payout, err := s.svc.Payout(c.Request.Context(), application.PayoutRequest{
		Uid:     req.Uid,
		Amount:  req.Amount,
		Memo:    req.Memo,
		Product: req.Metadata,
	})
	if err != nil {
		if payout == nil {
			abortWithError(c, err)
			return
		}
		// nolint:all
		c.Error(err)
		c.AbortWithStatusJSON(errorStatus(err), types.PayoutError{
			Error:  err.Error(),
			Payout: toPayoutJSON(*payout),
		})
		return
	}
	c.JSON(http.StatusCreated, toPayoutJSON(*payout))
}

func (s *service) listPayouts(c *gin.Context) {
	payouts, err := s.svc.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	data := make([]types.Payout, 0, len(payouts))
	for _, p := range payouts {
		data = append(data, toPayoutJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"payouts": data})
}

func (s *service) getPayout(c *gin.Context) {
	payout, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPayoutJSON(*payout))
}

func (s *service) cancelPayout(c *gin.Context) {
	payout, err := s.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPayoutJSON(*payout))
}

func (s *service) recoverPayouts(c *gin.Context) {
	report, err := s.svc.Recover(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *service) getWallet(c *gin.Context) {
	wallet, err := s.svc.Wallet(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	data := types.Wallet{
		Network: wallet.Network,
		Address: wallet.Address,
		Balance: wallet.Balance,
	}
	if next := s.svc.WhenNextRecovery(); !next.IsZero() {
		data.NextRecovery = next.Unix()
	}
	c.JSON(http.StatusOK, data)
}

func toPayoutJSON(p domain.Payout) types.Payout {
	return types.Payout{
		Id:        p.Id,
		Uid:       p.Uid,
		Amount:    p.Amount,
		Memo:      p.Memo,
		Metadata:  p.Metadata,
		PaymentId: p.PaymentId,
		Txid:      p.Txid,
		Status:    p.Status.String(),
		Error:     p.Error,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
