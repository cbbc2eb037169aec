package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pi-apps/a2u/internal/core/application"
	"github.com/pi-apps/a2u/internal/core/domain"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// payoutService is the part of *application.Service served over http.
type payoutService interface {
	Payout(ctx context.Context, req application.PayoutRequest) (*domain.Payout, error)
	Get(ctx context.Context, id string) (*domain.Payout, error)
	List(ctx context.Context) ([]domain.Payout, error)
	Cancel(ctx context.Context, id string) (*domain.Payout, error)
	Recover(ctx context.Context) (*application.RecoveryReport, error)
	Wallet(ctx context.Context) (*application.WalletInfo, error)
	WhenNextRecovery() time.Time
}

type service struct {
	*gin.Engine

	svc       payoutService
	buildInfo application.BuildInfo
	jwtSecret []byte
}

func NewService(appSvc *application.Service, jwtSecret string, withSentry bool) http.Handler {
	return newService(appSvc, appSvc.BuildInfo, jwtSecret, withSentry)
}

func newService(
	appSvc payoutService, buildInfo application.BuildInfo, jwtSecret string, withSentry bool,
) *service {
	router := gin.New()
	setupMiddleware(router, withSentry)

	svc := &service{router, appSvc, buildInfo, []byte(jwtSecret)}

	svc.Use(svc.authMiddleware)

	svc.GET("/healthz", svc.getHealth)

	v1 := svc.Group("/v1")
	v1.POST("/payouts", svc.createPayout)
	v1.GET("/payouts", svc.listPayouts)
	v1.GET("/payouts/:id", svc.getPayout)
	v1.POST("/payouts/:id/cancel", svc.cancelPayout)
	v1.POST("/recover", svc.recoverPayouts)
	v1.GET("/wallet", svc.getWallet)

	return svc
}
