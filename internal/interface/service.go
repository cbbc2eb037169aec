package service_interface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pi-apps/a2u/internal/core/application"
	"github.com/pi-apps/a2u/internal/interface/web"
)

const shutdownTimeout = 10 * time.Second

type Service interface {
	Start() error
	Stop()
}

type service struct {
	cfg    Config
	server *http.Server
}

func NewService(cfg Config, appSvc *application.Service) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if appSvc == nil {
		return nil, fmt.Errorf("missing application service")
	}

	api := web.NewService(appSvc, cfg.JWTSecret, cfg.WithSentry)

	server := &http.Server{
		Addr:              cfg.address(),
		Handler:           router(api),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &service{cfg, server}, nil
}

func (s *service) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
		}
	}()
	log.Infof("started listening at %s", s.cfg.address())

	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// nolint:all
	s.server.Shutdown(ctx)
	log.Info("stopped http server")
}

func router(api http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Add("Access-Control-Allow-Methods", "POST, GET, OPTIONS")

		if isOptionRequest(r) {
			return
		}
		api.ServeHTTP(w, r)
	})
}

func isOptionRequest(req *http.Request) bool {
	return req.Method == http.MethodOptions
}
