// Package phone is the client-side app layer: the bank, marketplace and real
// estate apps. Every action is validated against the cached user before the
// remote API is called, and a rejected action leaves all state untouched.
package phone

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"banksim/internal/bank"
)

// API is the remote persistence service. *cli.Client implements it.
type API interface {
	GetUser(ctx context.Context, userID int64) (bank.User, error)
	CreateUser(ctx context.Context, username string) (bank.User, error)
	AdjustBalance(ctx context.Context, in bank.AdjustBalanceInput) (bank.User, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]bank.Transaction, error)

	ListDeposits(ctx context.Context, userID int64) ([]bank.Deposit, error)
	CreateDeposit(ctx context.Context, in bank.CreateDepositInput) (bank.Deposit, error)

	ListProducts(ctx context.Context) ([]bank.Product, error)
	CreateProduct(ctx context.Context, in bank.CreateProductInput) (bank.Product, error)
	BuyProduct(ctx context.Context, buyerID, productID int64) (bank.PurchaseResult, error)

	ListProperties(ctx context.Context) ([]bank.Property, error)
	CreateProperty(ctx context.Context, in bank.CreatePropertyInput) (bank.Property, error)
	BuyProperty(ctx context.Context, buyerID, propertyID int64) (bank.PurchaseResult, error)
}

// Ledger persists which businesses each player owns.
type Ledger interface {
	Owned(userID int64) ([]string, error)
	SetOwned(userID int64, ids []string) error
}

type Phone struct {
	api    API
	ledger Ledger
	log    *slog.Logger

	mu   sync.Mutex
	user bank.User
}

func New(api API, ledger Ledger, logger *slog.Logger) *Phone {
	if logger == nil {
		logger = slog.Default()
	}
	return &Phone{api: api, ledger: ledger, log: logger}
}

// SignIn loads an existing user into the phone.
func (p *Phone) SignIn(ctx context.Context, userID int64) (bank.User, error) {
	u, err := p.api.GetUser(ctx, userID)
	if err != nil {
		return bank.User{}, fmt.Errorf("load user: %w", err)
	}
	p.setUser(u)
	return u, nil
}

func (p *Phone) SignUp(ctx context.Context, username string) (bank.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return bank.User{}, reject("username", ErrMissingField, "username is required")
	}
	u, err := p.api.CreateUser(ctx, username)
	if err != nil {
		return bank.User{}, fmt.Errorf("create user: %w", err)
	}
	p.setUser(u)
	return u, nil
}

func (p *Phone) User() bank.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user
}

func (p *Phone) Balance() int64 {
	return p.User().Balance
}

// Refresh re-reads the user so the cached balance follows server side
// changes such as bot purchases of our listings.
func (p *Phone) Refresh(ctx context.Context) (bank.User, error) {
	cur, err := p.current()
	if err != nil {
		return bank.User{}, err
	}
	return p.SignIn(ctx, cur.ID)
}

func (p *Phone) Transactions(ctx context.Context, limit int) ([]bank.Transaction, error) {
	cur, err := p.current()
	if err != nil {
		return nil, err
	}
	items, err := p.api.ListTransactions(ctx, cur.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return items, nil
}

func (p *Phone) current() (bank.User, error) {
	u := p.User()
	if u.ID <= 0 {
		return bank.User{}, ErrNotSignedIn
	}
	return u, nil
}

func (p *Phone) setUser(u bank.User) {
	p.mu.Lock()
	p.user = u
	p.mu.Unlock()
}

func (p *Phone) setBalance(balance int64) {
	p.mu.Lock()
	p.user.Balance = balance
	p.mu.Unlock()
}

// refreshAfter re-reads the user after a server side balance change. A
// failed re-read is logged and the change is still reported as done.
func (p *Phone) refreshAfter(ctx context.Context, userID int64, fallback int64) {
	u, err := p.api.GetUser(ctx, userID)
	if err != nil {
		p.log.Warn("refresh user failed", "user_id", userID, "err", err)
		p.setBalance(fallback)
		return
	}
	p.setUser(u)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func ownedContains(ids []string, id string) bool {
	return slices.Contains(ids, id)
}
