// Package fakepi serves an in-memory imitation of the Pi platform payments API
// for tests.
package fakepi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pi-apps/a2u/pkg/pi"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

const identifierLen = 28

type Server struct {
	*httptest.Server

	apiKey     string
	appAddress string
	network    string

	mu         sync.Mutex
	payments   map[string]*pi.Payment
	order      []string
	users      map[string]string
	tokens     map[string]pi.User
	nextIds    []string
	calls      map[string]int
	failCreate *pi.ServiceError
}

type Opts struct {
	ApiKey     string
	AppAddress string
	Network    string
}

func NewServer(opts Opts) *Server {
	if opts.Network == "" {
		opts.Network = pi.NetworkTestnet
	}
	s := &Server{
		apiKey:     opts.ApiKey,
		appAddress: opts.AppAddress,
		network:    opts.Network,
		payments:   make(map[string]*pi.Payment),
		users:      make(map[string]string),
		tokens:     make(map[string]pi.User),
		calls:      make(map[string]int),
	}

	router := gin.New()
	v2 := router.Group("/v2", s.auth)
	v2.POST("/payments", s.createPayment)
	v2.GET("/payments/incomplete_server_payments", s.incompletePayments)
	v2.GET("/payments/:id", s.getPayment)
	v2.POST("/payments/:id/approve", s.approvePayment)
	v2.POST("/payments/:id/submit", s.submitTransaction)
	v2.POST("/payments/:id/complete", s.completePayment)
	v2.POST("/payments/:id/cancel", s.cancelPayment)
	v2.GET("/me", s.me)

	s.Server = httptest.NewServer(router)
	return s
}

// SetUserAddress registers the wallet address paid to for uid.
func (s *Server) SetUserAddress(uid, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[uid] = address
}

func (s *Server) SetUserToken(token string, user pi.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = user
}

// QueueIds makes the next created payments use the given identifiers.
func (s *Server) QueueIds(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextIds = append(s.nextIds, ids...)
}

func (s *Server) FailNextCreate(err *pi.ServiceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = err
}

// AddPayment stores a payment as is, e.g. a user-to-app payment opened by a
// frontend.
func (s *Server) AddPayment(payment pi.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := payment
	s.payments[p.Identifier] = &p
	s.order = append(s.order, p.Identifier)
}

func (s *Server) Payment(id string) (pi.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return pi.Payment{}, false
	}
	return *p, true
}

// Calls returns how many times the route (e.g. "POST /v2/payments/:id/submit")
// was hit.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) auth(c *gin.Context) {
	s.mu.Lock()
	s.calls[c.Request.Method+" "+c.FullPath()]++
	s.mu.Unlock()

	header := c.GetHeader("Authorization")
	if c.FullPath() == "/v2/me" {
		if !strings.HasPrefix(header, "Bearer ") {
			abort(c, http.StatusUnauthorized, "unauthorized", "missing user access token")
		}
		return
	}
	if header != "Key "+s.apiKey {
		abort(c, http.StatusUnauthorized, "invalid_key", "Invalid API key")
	}
}

func (s *Server) createPayment(c *gin.Context) {
	var req struct {
		Payment pi.PaymentArgs `json:"payment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	args := req.Payment
	if args.Amount <= 0 || args.Memo == "" || args.Uid == "" || len(args.Metadata) == 0 {
		abort(c, http.StatusBadRequest, "invalid_request", "amount, memo, metadata and uid are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreate != nil {
		svcErr := s.failCreate
		s.failCreate = nil
		abort(c, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}

	for _, id := range s.order {
		p := s.payments[id]
		if p.Direction == pi.DirectionAppToUser && p.IsIncomplete() {
			abort(c, http.StatusBadRequest, "ongoing_payment_found",
				"You need to complete the ongoing payment first")
			return
		}
	}

	toAddress, ok := s.users[args.Uid]
	if !ok {
		abort(c, http.StatusNotFound, "user_not_found", fmt.Sprintf("user %s has no wallet", args.Uid))
		return
	}

	id := s.newId()
	payment := &pi.Payment{
		Identifier:  id,
		UserUid:     args.Uid,
		Amount:      args.Amount,
		Memo:        args.Memo,
		Metadata:    args.Metadata,
		FromAddress: s.appAddress,
		ToAddress:   toAddress,
		Direction:   pi.DirectionAppToUser,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Network:     s.network,
		Status:      pi.PaymentStatus{DeveloperApproved: true},
	}
	s.payments[id] = payment
	s.order = append(s.order, id)

	c.JSON(http.StatusOK, payment)
}

func (s *Server) getPayment(c *gin.Context) {
	s.withPayment(c, func(p *pi.Payment) {
		c.JSON(http.StatusOK, p)
	})
}

func (s *Server) approvePayment(c *gin.Context) {
	s.withPayment(c, func(p *pi.Payment) {
		if p.Status.Cancelled || p.Status.UserCancelled {
			abort(c, http.StatusConflict, "payment_cancelled", "payment was cancelled")
			return
		}
		p.Status.DeveloperApproved = true
		c.JSON(http.StatusOK, p)
	})
}

func (s *Server) submitTransaction(c *gin.Context) {
	txid, ok := bindTxid(c)
	if !ok {
		return
	}
	s.withPayment(c, func(p *pi.Payment) {
		if p.State() == pi.StateCancelled || p.State() == pi.StateCompleted {
			abort(c, http.StatusConflict, "payment_closed", "payment is already closed")
			return
		}
		if p.Transaction != nil && p.Transaction.Txid != txid {
			abort(c, http.StatusConflict, "transaction_already_linked",
				"a different transaction is already linked to this payment")
			return
		}
		p.Transaction = s.transaction(txid, false)
		c.JSON(http.StatusOK, p)
	})
}

func (s *Server) completePayment(c *gin.Context) {
	txid, ok := bindTxid(c)
	if !ok {
		return
	}
	s.withPayment(c, func(p *pi.Payment) {
		switch p.State() {
		case pi.StateCompleted:
			abort(c, http.StatusConflict, "already_completed", "payment is already completed")
			return
		case pi.StateCancelled:
			abort(c, http.StatusConflict, "payment_cancelled", "payment was cancelled")
			return
		}
		if p.Transaction != nil && p.Transaction.Txid != txid {
			abort(c, http.StatusBadRequest, "txid_mismatch",
				"txid does not match the transaction linked to this payment")
			return
		}
		p.Transaction = s.transaction(txid, true)
		p.Status.TransactionVerified = true
		p.Status.DeveloperCompleted = true
		c.JSON(http.StatusOK, p)
	})
}

func (s *Server) cancelPayment(c *gin.Context) {
	s.withPayment(c, func(p *pi.Payment) {
		if p.State() == pi.StateCompleted {
			abort(c, http.StatusConflict, "already_completed", "cannot cancel a completed payment")
			return
		}
		p.Status.Cancelled = true
		c.JSON(http.StatusOK, p)
	})
}

func (s *Server) incompletePayments(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payments := make([]pi.Payment, 0, 1)
	for _, id := range s.order {
		p := s.payments[id]
		if p.Direction == pi.DirectionAppToUser && p.IsIncomplete() {
			payments = append(payments, *p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"incomplete_server_payments": payments})
}

func (s *Server) me(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	s.mu.Lock()
	user, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		abort(c, http.StatusUnauthorized, "invalid_token", "user access token is not valid")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) withPayment(c *gin.Context, fn func(p *pi.Payment)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[c.Param("id")]
	if !ok {
		abort(c, http.StatusNotFound, "payment_not_found", "payment not found")
		return
	}
	fn(p)
}

func (s *Server) transaction(txid string, verified bool) *pi.Transaction {
	return &pi.Transaction{
		Txid:     txid,
		Verified: verified,
		Link:     s.URL + "/operations/" + txid,
	}
}

func (s *Server) newId() string {
	if len(s.nextIds) > 0 {
		id := s.nextIds[0]
		s.nextIds = s.nextIds[1:]
		return id
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:identifierLen]
}

func bindTxid(c *gin.Context) (string, bool) {
	var req struct {
		Txid string `json:"txid"`
	}
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil || req.Txid == "" {
		abort(c, http.StatusBadRequest, "invalid_request", "txid is required")
		return "", false
	}
	return req.Txid, true
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "error_message": message})
}
