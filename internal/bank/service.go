package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	db   *pgxpool.Pool
	log  *slog.Logger
	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:   db,
		log:  logger,
		rand: mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) GetUser(ctx context.Context, userID int64) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, username, balance, is_bot, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.Balance, &u.IsBot, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}

func (s *Service) CreateUser(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return User{}, err
	}
	return s.insertUser(ctx, s.db, username, StarterBalance, false)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Service) insertUser(ctx context.Context, q queryRower, username string, balance int64, isBot bool) (User, error) {
	var u User
	err := q.QueryRow(ctx, `
		INSERT INTO users (username, balance, is_bot)
		VALUES ($1, $2, $3)
		RETURNING id, username, balance, is_bot, created_at
	`, username, balance, isBot).Scan(&u.ID, &u.Username, &u.Balance, &u.IsBot, &u.CreatedAt)
	if isUniqueViolation(err) {
		return u, invalid("username %q is taken", username)
	}
	return u, err
}

func (s *Service) UpdateBalance(ctx context.Context, userID, balance int64) error {
	if err := ValidateBalance(balance); err != nil {
		return err
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE users SET balance = $1, updated_at = now()
		WHERE id = $2
	`, balance, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AdjustBalance applies a relative change under a row lock so concurrent
// server side credits, such as a bot buying the user's listing, are kept.
func (s *Service) AdjustBalance(ctx context.Context, in AdjustBalanceInput) (User, error) {
	if err := in.Normalize(); err != nil {
		return User{}, err
	}
	var u User
	err := s.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, in.Type); err != nil {
			return err
		}
		balance, err := lockBalanceTx(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		if _, err := applyDelta(balance, in.Delta); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			UPDATE users SET balance = balance + $1, updated_at = now()
			WHERE id = $2
			RETURNING id, username, balance, is_bot, created_at
		`, in.Delta, in.UserID).Scan(&u.ID, &u.Username, &u.Balance, &u.IsBot, &u.CreatedAt); err != nil {
			return err
		}
		return recordTransactionTx(ctx, tx, in.UserID, nil, -in.Delta, in.Type, in.Description)
	})
	if err != nil {
		return User{}, err
	}
	s.log.Info("balance adjusted", "user_id", in.UserID, "delta", in.Delta, "type", in.Type)
	return u, nil
}

func applyDelta(balance, delta int64) (int64, error) {
	next := balance + delta
	if next < 0 {
		return balance, ErrInsufficientFunds
	}
	return next, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.Query(ctx, `
		SELECT mp.id, mp.seller_id, u.username, mp.name, mp.price, mp.description, mp.image_url, mp.is_sold, mp.created_at
		FROM marketplace_products mp
		JOIN users u ON u.id = mp.seller_id
		WHERE mp.is_sold = false
		ORDER BY mp.created_at DESC, mp.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.SellerName, &p.Name, &p.Price, &p.Description, &p.ImageURL, &p.IsSold, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	if err := in.Normalize(); err != nil {
		return Product{}, err
	}
	var p Product
	err := s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO marketplace_products (seller_id, name, price, description, image_url)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, seller_id, name, price, description, image_url, is_sold, created_at
		)
		SELECT i.id, i.seller_id, u.username, i.name, i.price, i.description, i.image_url, i.is_sold, i.created_at
		FROM inserted i
		JOIN users u ON u.id = i.seller_id
	`, in.SellerID, in.Name, in.Price, in.Description, in.ImageURL).Scan(
		&p.ID, &p.SellerID, &p.SellerName, &p.Name, &p.Price, &p.Description, &p.ImageURL, &p.IsSold, &p.CreatedAt)
	if isForeignKeyViolation(err) {
		return p, ErrUserNotFound
	}
	return p, err
}

func (s *Service) BuyProduct(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	return s.purchase(ctx, productListing, in, TxMarketplacePurchase, "marketplace_buy")
}

func (s *Service) ListProperties(ctx context.Context) ([]Property, error) {
	rows, err := s.db.Query(ctx, `
		SELECT re.id, re.seller_id, u.username, re.title, re.price, re.address, re.rooms, re.area,
		       re.description, re.image_url, re.is_sold, re.created_at
		FROM real_estate re
		JOIN users u ON u.id = re.seller_id
		WHERE re.is_sold = false
		ORDER BY re.created_at DESC, re.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Property{}
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ID, &p.SellerID, &p.SellerName, &p.Title, &p.Price, &p.Address, &p.Rooms, &p.Area,
			&p.Description, &p.ImageURL, &p.IsSold, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) CreateProperty(ctx context.Context, in CreatePropertyInput) (Property, error) {
	if err := in.Normalize(); err != nil {
		return Property{}, err
	}
	var p Property
	err := s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO real_estate (seller_id, title, price, address, rooms, area, description, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, seller_id, title, price, address, rooms, area, description, image_url, is_sold, created_at
		)
		SELECT i.id, i.seller_id, u.username, i.title, i.price, i.address, i.rooms, i.area,
		       i.description, i.image_url, i.is_sold, i.created_at
		FROM inserted i
		JOIN users u ON u.id = i.seller_id
	`, in.SellerID, in.Title, in.Price, in.Address, in.Rooms, in.Area, in.Description, in.ImageURL).Scan(
		&p.ID, &p.SellerID, &p.SellerName, &p.Title, &p.Price, &p.Address, &p.Rooms, &p.Area,
		&p.Description, &p.ImageURL, &p.IsSold, &p.CreatedAt)
	if isForeignKeyViolation(err) {
		return p, ErrUserNotFound
	}
	return p, err
}

func (s *Service) BuyProperty(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	return s.purchase(ctx, propertyListing, in, TxRealEstatePurchase, "realestate_buy")
}

func (s *Service) ListDeposits(ctx context.Context, userID int64) ([]Deposit, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, deposit_name, amount, rate, term_months, created_at, expires_at
		FROM user_deposits
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Deposit{}
	for rows.Next() {
		var d Deposit
		if err := rows.Scan(&d.ID, &d.UserID, &d.DepositName, &d.Amount, &d.Rate, &d.TermMonths, &d.CreatedAt, &d.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateDeposit opens the deposit and moves its amount off the balance in one
// transaction.
func (s *Service) CreateDeposit(ctx context.Context, in CreateDepositInput) (Deposit, error) {
	if err := in.Normalize(); err != nil {
		return Deposit{}, err
	}
	var d Deposit
	err := s.inSerializableTx(ctx, func(tx pgx.Tx) error {
		balance, err := lockBalanceTx(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		if _, err := applyDelta(balance, -in.Amount); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET balance = balance - $1, updated_at = now()
			WHERE id = $2
		`, in.Amount, in.UserID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO user_deposits (user_id, deposit_name, amount, rate, term_months, expires_at)
			VALUES ($1, $2, $3, $4, $5, now() + make_interval(months => $5))
			RETURNING id, user_id, deposit_name, amount, rate, term_months, created_at, expires_at
		`, in.UserID, in.DepositName, in.Amount, in.Rate, in.TermMonths).Scan(
			&d.ID, &d.UserID, &d.DepositName, &d.Amount, &d.Rate, &d.TermMonths, &d.CreatedAt, &d.ExpiresAt); err != nil {
			return err
		}
		return recordTransactionTx(ctx, tx, in.UserID, nil, in.Amount, TxDepositOpen, in.DepositName)
	})
	return d, err
}

func (s *Service) ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, from_user_id, to_user_id, amount, type, description, created_at
		FROM transactions
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.Amount, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SeedDefaults lists a few starter goods and flats from store accounts when
// the boards are empty.
func (s *Service) SeedDefaults(ctx context.Context) error {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM marketplace_products`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	products := []struct {
		Seller      string
		Name        string
		Price       int64
		Description string
		Image       string
	}{
		{"electronics_store", "Apple MacBook Pro", 150_000, "Powerful laptop for work and creativity", "https://images.unsplash.com/photo-1517336714731-489689fd1ca8?w=400"},
		{"apple_store", "iPhone 15 Pro", 120_000, "The newest Apple smartphone", "https://images.unsplash.com/photo-1695048133142-1a20484d2569?w=400"},
		{"game_store", "PlayStation 5", 55_000, "Next generation game console", "https://images.unsplash.com/photo-1606813907291-d86efa9b94db?w=400"},
		{"home_and_kitchen", "Delonghi Coffee Machine", 35_000, "Automatic coffee machine for home", "https://images.unsplash.com/photo-1517668808822-9ebb02f2a0e6?w=400"},
	}
	properties := []CreatePropertyInput{
		{Title: "Studio near the park", Price: 4_500_000, Address: "12 Lenina St", Rooms: 1, Area: 28, Description: "Cosy studio, fresh renovation"},
		{Title: "Two-room flat", Price: 9_800_000, Address: "5 Mira Ave", Rooms: 2, Area: 54.5, Description: "Bright flat with a balcony"},
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sellers := map[string]int64{}
	sellerID := func(name string) (int64, error) {
		if id, ok := sellers[name]; ok {
			return id, nil
		}
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO users (username, balance, is_bot)
			VALUES ($1, 0, true)
			ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
			RETURNING id
		`, name).Scan(&id)
		if err != nil {
			return 0, err
		}
		sellers[name] = id
		return id, nil
	}

	for _, p := range products {
		id, err := sellerID(p.Seller)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO marketplace_products (seller_id, name, price, description, image_url)
			VALUES ($1, $2, $3, $4, $5)
		`, id, p.Name, p.Price, p.Description, p.Image); err != nil {
			return err
		}
	}
	agency, err := sellerID("city_realty")
	if err != nil {
		return err
	}
	for _, p := range properties {
		if _, err := tx.Exec(ctx, `
			INSERT INTO real_estate (seller_id, title, price, address, rooms, area, description, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, agency, p.Title, p.Price, p.Address, p.Rooms, p.Area, p.Description, PlaceholderPropertyImage); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Info("seeded default listings", "products", len(products), "properties", len(properties))
	return nil
}

const (
	PlaceholderProductImage  = "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=400"
	PlaceholderPropertyImage = "https://images.unsplash.com/photo-1560448204-e02f11c3d0e2?w=400"
)

type listing struct {
	table        string
	titleColumn  string
	notAvailable error
}

var (
	productListing  = listing{table: "marketplace_products", titleColumn: "name", notAvailable: ErrProductNotAvailable}
	propertyListing = listing{table: "real_estate", titleColumn: "title", notAvailable: ErrPropertyNotAvailable}
)

func (s *Service) purchase(ctx context.Context, l listing, in PurchaseInput, txType, action string) (PurchaseResult, error) {
	if err := in.validate(); err != nil {
		return PurchaseResult{}, err
	}
	var out PurchaseResult
	err := s.inSerializableTx(ctx, func(tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.BuyerID, in.IdempotencyKey, action); err != nil {
			return err
		}
		res, err := buyListingTx(ctx, tx, l, in.BuyerID, in.ListingID, txType)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.log.Info("listing purchased", "table", l.table, "listing_id", in.ListingID, "buyer_id", in.BuyerID, "price", out.Price)
	return out, nil
}

// buyListingTx moves the price from buyer to seller and marks the listing
// sold. The caller owns the transaction.
func buyListingTx(ctx context.Context, tx pgx.Tx, l listing, buyerID, listingID int64, txType string) (PurchaseResult, error) {
	var sellerID, price int64
	var title string
	err := tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT seller_id, price, %s
		FROM %s
		WHERE id = $1 AND is_sold = false
		FOR UPDATE
	`, l.titleColumn, l.table), listingID).Scan(&sellerID, &price, &title)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseResult{}, l.notAvailable
	}
	if err != nil {
		return PurchaseResult{}, err
	}
	if err := checkSeller(buyerID, sellerID); err != nil {
		return PurchaseResult{}, err
	}

	balance, err := lockBalanceTx(ctx, tx, buyerID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if _, err := applyDelta(balance, -price); err != nil {
		return PurchaseResult{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance - $1, updated_at = now() WHERE id = $2`, price, buyerID); err != nil {
		return PurchaseResult{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance + $1, updated_at = now() WHERE id = $2`, price, sellerID); err != nil {
		return PurchaseResult{}, err
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET is_sold = true, buyer_id = $2, sold_at = now()
		WHERE id = $1
	`, l.table), listingID, buyerID); err != nil {
		return PurchaseResult{}, err
	}
	if err := recordTransactionTx(ctx, tx, buyerID, &sellerID, price, txType, title); err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{ListingID: listingID, Price: price, BuyerBalance: balance - price}, nil
}

func checkSeller(buyerID, sellerID int64) error {
	if buyerID == sellerID {
		return ErrSelfTrade
	}
	return nil
}

func lockBalanceTx(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return balance, err
}

func recordTransactionTx(ctx context.Context, tx pgx.Tx, fromUserID int64, toUserID *int64, amount int64, txType, description string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (from_user_id, to_user_id, amount, type, description)
		VALUES ($1, $2, $3, $4, $5)
	`, fromUserID, toUserID, amount, txType, description)
	return err
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, userID int64, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return invalid("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

// inSerializableTx runs fn in a serializable transaction, retrying with
// backoff while Postgres reports serialization failures.
func (s *Service) inSerializableTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		s.log.Debug("serialization conflict, retrying", "attempt", attempt+1, "delay", retryDelay.String())
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

func (s *Service) nextIntn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}
