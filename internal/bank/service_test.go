package bank

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"banksim/internal/db"
)

func TestPurchaseRules(t *testing.T) {
	if err := checkSeller(7, 7); !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("expected ErrSelfTrade, got %v", err)
	}
	if err := checkSeller(7, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := applyDelta(99, -100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	next, err := applyDelta(100, -100)
	if err != nil || next != 0 {
		t.Fatalf("exact balance should be spendable: next=%d err=%v", next, err)
	}
}

func TestAdjustBalanceInputNormalize(t *testing.T) {
	ok := []AdjustBalanceInput{
		{UserID: 1, Delta: 10, Type: TxCreditTaken},
		{UserID: 1, Delta: -10, Type: TxBusinessPurchase},
	}
	for _, in := range ok {
		if err := in.Normalize(); err != nil {
			t.Fatalf("%+v: unexpected error: %v", in, err)
		}
	}
	bad := []AdjustBalanceInput{
		{Delta: 10, Type: TxCreditTaken},
		{UserID: 1, Delta: -10, Type: TxCreditTaken},
		{UserID: 1, Delta: 10, Type: TxBusinessPurchase},
		{UserID: 1, Delta: 10, Type: TxDepositOpen},
	}
	for _, in := range bad {
		if err := in.Normalize(); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

// openTestService connects to BANKSIM_TEST_DATABASE_URL and skips when it
// is not set.
func openTestService(t *testing.T) (*Service, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("BANKSIM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BANKSIM_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Connect(ctx, url, db.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewService(pool, nil), pool
}

func newTestUser(t *testing.T, svc *Service, prefix string, balance int64) User {
	t.Helper()
	ctx := context.Background()
	name := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()%1_000_000_000)
	u, err := svc.CreateUser(ctx, name)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	if err := svc.UpdateBalance(ctx, u.ID, balance); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	u.Balance = balance
	return u
}

func buy(svc *Service, buyerID, productID int64) (PurchaseResult, error) {
	return svc.BuyProduct(context.Background(), PurchaseInput{
		BuyerID:        buyerID,
		ListingID:      productID,
		IdempotencyKey: uuid.NewString(),
	})
}

func TestBuyProductRulesAgainstDatabase(t *testing.T) {
	svc, _ := openTestService(t)
	ctx := context.Background()

	seller := newTestUser(t, svc, "seller", 0)
	poor := newTestUser(t, svc, "poor", 50)
	buyer := newTestUser(t, svc, "buyer", 1_000)

	product, err := svc.CreateProduct(ctx, CreateProductInput{SellerID: seller.ID, Name: "Kettle", Price: 400})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if _, err := buy(svc, seller.ID, product.ID); !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("expected ErrSelfTrade, got %v", err)
	}
	if _, err := buy(svc, poor.ID, product.ID); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	res, err := buy(svc, buyer.ID, product.ID)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.BuyerBalance != 600 {
		t.Fatalf("buyer balance=%d want 600", res.BuyerBalance)
	}
	got, err := svc.GetUser(ctx, seller.ID)
	if err != nil {
		t.Fatalf("get seller: %v", err)
	}
	if got.Balance != 400 {
		t.Fatalf("seller balance=%d want 400", got.Balance)
	}

	if _, err := buy(svc, buyer.ID, product.ID); !errors.Is(err, ErrProductNotAvailable) {
		t.Fatalf("expected ErrProductNotAvailable, got %v", err)
	}
}

func TestAdjustBalanceKeepsConcurrentCredit(t *testing.T) {
	svc, pool := openTestService(t)
	ctx := context.Background()
	u := newTestUser(t, svc, "adjust", 100_000)

	// a listing sale credits the user behind the phone's back
	if _, err := pool.Exec(ctx, `UPDATE users SET balance = balance + 50000 WHERE id = $1`, u.ID); err != nil {
		t.Fatalf("credit: %v", err)
	}

	got, err := svc.AdjustBalance(ctx, AdjustBalanceInput{UserID: u.ID, Delta: 10_000, Type: TxCreditTaken, IdempotencyKey: uuid.NewString()})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if got.Balance != 160_000 {
		t.Fatalf("balance=%d want 160000", got.Balance)
	}

	_, err = svc.AdjustBalance(ctx, AdjustBalanceInput{UserID: u.ID, Delta: -500_000, Type: TxBusinessPurchase, IdempotencyKey: uuid.NewString()})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
