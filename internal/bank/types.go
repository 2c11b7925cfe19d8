package bank

import "time"

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Balance   int64     `json:"balance"`
	IsBot     bool      `json:"is_bot"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          int64     `json:"id"`
	SellerID    int64     `json:"seller_id"`
	SellerName  string    `json:"seller_name"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	IsSold      bool      `json:"is_sold"`
	CreatedAt   time.Time `json:"created_at"`
}

type Property struct {
	ID          int64     `json:"id"`
	SellerID    int64     `json:"seller_id"`
	SellerName  string    `json:"seller_name"`
	Title       string    `json:"title"`
	Price       int64     `json:"price"`
	Address     string    `json:"address"`
	Rooms       int32     `json:"rooms"`
	Area        float64   `json:"area"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	IsSold      bool      `json:"is_sold"`
	CreatedAt   time.Time `json:"created_at"`
}

type Deposit struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	DepositName string    `json:"deposit_name"`
	Amount      int64     `json:"amount"`
	Rate        float64   `json:"rate"`
	TermMonths  int32     `json:"term_months"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Transaction struct {
	ID          int64     `json:"id"`
	FromUserID  int64     `json:"from_user_id"`
	ToUserID    *int64    `json:"to_user_id,omitempty"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateProductInput struct {
	SellerID    int64  `json:"seller_id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

type CreatePropertyInput struct {
	SellerID    int64   `json:"seller_id"`
	Title       string  `json:"title"`
	Price       int64   `json:"price"`
	Address     string  `json:"address"`
	Rooms       int32   `json:"rooms"`
	Area        float64 `json:"area"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
}

type CreateDepositInput struct {
	UserID      int64   `json:"user_id"`
	DepositName string  `json:"deposit_name"`
	Amount      int64   `json:"amount"`
	Rate        float64 `json:"rate"`
	TermMonths  int32   `json:"term_months"`
}

// AdjustBalanceInput changes a balance by Delta relative to its current
// value. Type is TxCreditTaken or TxBusinessPurchase.
type AdjustBalanceInput struct {
	UserID         int64  `json:"user_id"`
	Delta          int64  `json:"delta"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"-"`
}

type PurchaseInput struct {
	BuyerID        int64
	ListingID      int64
	IdempotencyKey string
}

type PurchaseResult struct {
	ListingID    int64 `json:"listing_id"`
	Price        int64 `json:"price"`
	BuyerBalance int64 `json:"buyer_balance"`
}

type BotTickResult struct {
	PurchasesMade int       `json:"purchases_made"`
	Timestamp     time.Time `json:"timestamp"`
}
