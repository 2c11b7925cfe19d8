package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"banksim/internal/bank"
	"banksim/internal/imagegen"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

// Bank is the slice of *bank.Service the HTTP layer depends on.
type Bank interface {
	GetUser(ctx context.Context, userID int64) (bank.User, error)
	CreateUser(ctx context.Context, username string) (bank.User, error)
	UpdateBalance(ctx context.Context, userID, balance int64) error
	AdjustBalance(ctx context.Context, in bank.AdjustBalanceInput) (bank.User, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]bank.Transaction, error)

	ListProducts(ctx context.Context) ([]bank.Product, error)
	CreateProduct(ctx context.Context, in bank.CreateProductInput) (bank.Product, error)
	BuyProduct(ctx context.Context, in bank.PurchaseInput) (bank.PurchaseResult, error)

	ListProperties(ctx context.Context) ([]bank.Property, error)
	CreateProperty(ctx context.Context, in bank.CreatePropertyInput) (bank.Property, error)
	BuyProperty(ctx context.Context, in bank.PurchaseInput) (bank.PurchaseResult, error)

	ListDeposits(ctx context.Context, userID int64) ([]bank.Deposit, error)
	CreateDeposit(ctx context.Context, in bank.CreateDepositInput) (bank.Deposit, error)

	RunBotTick(ctx context.Context) (bank.BotTickResult, error)
}

type ImageSource interface {
	ImageURL(ctx context.Context, kind imagegen.Kind, title, description string) string
}

type Server struct {
	log    *slog.Logger
	bank   Bank
	images ImageSource
	mux    *chi.Mux
}

func New(logger *slog.Logger, bankSvc Bank, images ImageSource) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:    logger,
		bank:   bankSvc,
		images: images,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
		MaxAge:         86400,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)
		r.Get("/users/{id}", s.handleGetUser)
		r.Get("/users/{id}/transactions", s.handleTransactions)
		r.Get("/users/{id}/deposits", s.handleDepositsList)
		r.Put("/balance", s.handleUpdateBalance)
		r.Post("/balance/adjust", s.handleAdjustBalance)

		r.Get("/marketplace", s.handleProductsList)
		r.Post("/marketplace", s.handleCreateProduct)
		r.Post("/marketplace/buy", s.handleBuyProduct)

		r.Get("/realestate", s.handlePropertiesList)
		r.Post("/realestate", s.handleCreateProperty)
		r.Post("/realestate/buy", s.handleBuyProperty)

		r.Post("/deposits", s.handleCreateDeposit)

		r.Get("/catalog", s.handleCatalog)
		r.Get("/bot/tick", s.handleBotTick)
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := s.bank.CreateUser(r.Context(), in.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("user created", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := s.bank.GetUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.bank.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleUpdateBalance(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID  int64 `json:"user_id"`
		Balance int64 `json:"balance"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.bank.UpdateBalance(r.Context(), in.UserID, in.Balance); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	var in bank.AdjustBalanceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.IdempotencyKey = idempotencyKey(r)
	user, err := s.bank.AdjustBalance(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleProductsList(w http.ResponseWriter, r *http.Request) {
	items, err := s.bank.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in bank.CreateProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.Normalize(); err != nil {
		writeDomainError(w, err)
		return
	}
	if in.ImageURL == "" && s.images != nil {
		in.ImageURL = s.images.ImageURL(r.Context(), imagegen.KindProduct, in.Name, in.Description)
	}
	product, err := s.bank.CreateProduct(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (s *Server) handleBuyProduct(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BuyerID   int64 `json:"buyer_id"`
		ProductID int64 `json:"product_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.bank.BuyProduct(r.Context(), bank.PurchaseInput{
		BuyerID:        in.BuyerID,
		ListingID:      in.ProductID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePropertiesList(w http.ResponseWriter, r *http.Request) {
	items, err := s.bank.ListProperties(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateProperty(w http.ResponseWriter, r *http.Request) {
	var in bank.CreatePropertyInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.Normalize(); err != nil {
		writeDomainError(w, err)
		return
	}
	if in.ImageURL == "" && s.images != nil {
		in.ImageURL = s.images.ImageURL(r.Context(), imagegen.KindProperty, in.Title, in.Address)
	}
	property, err := s.bank.CreateProperty(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, property)
}

func (s *Server) handleBuyProperty(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BuyerID    int64 `json:"buyer_id"`
		PropertyID int64 `json:"property_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.bank.BuyProperty(r.Context(), bank.PurchaseInput{
		BuyerID:        in.BuyerID,
		ListingID:      in.PropertyID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDepositsList(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := s.bank.ListDeposits(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateDeposit(w http.ResponseWriter, r *http.Request) {
	var in bank.CreateDepositInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deposit, err := s.bank.CreateDeposit(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deposit)
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, bank.DefaultCatalog())
}

func (s *Server) handleBotTick(w http.ResponseWriter, r *http.Request) {
	result, err := s.bank.RunBotTick(r.Context())
	if err != nil {
		s.log.Warn("bot tick failed", "err", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bank.ErrDuplicateIdempotency), errors.Is(err, bank.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, bank.ErrInsufficientFunds),
		errors.Is(err, bank.ErrProductNotAvailable),
		errors.Is(err, bank.ErrPropertyNotAvailable),
		errors.Is(err, bank.ErrSelfTrade),
		errors.Is(err, bank.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bank.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
