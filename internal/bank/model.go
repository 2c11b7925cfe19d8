package bank

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	StarterBalance = int64(170_000)

	BotMinBalance = int64(50_000)
	BotMaxBalance = int64(500_000)

	DefaultRooms = int32(1)

	TxMarketplacePurchase = "marketplace_purchase"
	TxRealEstatePurchase  = "realestate_purchase"
	TxBotPurchase         = "bot_purchase"
	TxDepositOpen         = "deposit_open"
	TxCreditTaken         = "credit_taken"
	TxBusinessPurchase    = "business_purchase"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUserNotFound         = errors.New("user not found")
	ErrProductNotAvailable  = errors.New("product not available")
	ErrPropertyNotAvailable = errors.New("property not available")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrSelfTrade            = errors.New("cannot buy your own listing")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("transaction conflict, retry later")
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

var blockedNameFragments = []string{
	"admin",
	"support",
	"shit",
	"fuck",
	"bitch",
	"nazi",
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func ValidateUsername(username string) error {
	if !usernameRE.MatchString(strings.TrimSpace(username)) {
		return invalid("username must be 3-32 letters, digits or underscores")
	}
	return validateEntityName(username)
}

func ValidateBalance(balance int64) error {
	if balance < 0 {
		return invalid("balance must be >= 0")
	}
	return nil
}

func (in *CreateProductInput) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if in.SellerID <= 0 {
		return invalid("seller_id is required")
	}
	if err := validateEntityName(in.Name); err != nil {
		return err
	}
	if in.Price <= 0 {
		return invalid("price must be > 0")
	}
	return nil
}

func (in *CreatePropertyInput) Normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Address = strings.TrimSpace(in.Address)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if in.SellerID <= 0 {
		return invalid("seller_id is required")
	}
	if err := validateEntityName(in.Title); err != nil {
		return err
	}
	if in.Address == "" {
		return invalid("address is required")
	}
	if in.Price <= 0 {
		return invalid("price must be > 0")
	}
	if in.Rooms <= 0 {
		in.Rooms = DefaultRooms
	}
	if in.Area < 0 {
		return invalid("area must be >= 0")
	}
	return nil
}

func (in *CreateDepositInput) Normalize() error {
	in.DepositName = strings.TrimSpace(in.DepositName)
	if in.UserID <= 0 {
		return invalid("user_id is required")
	}
	if in.DepositName == "" {
		return invalid("deposit_name is required")
	}
	if in.Amount <= 0 {
		return invalid("amount must be > 0")
	}
	if in.Rate < 0 {
		return invalid("rate must be >= 0")
	}
	if in.TermMonths <= 0 {
		return invalid("term_months must be > 0")
	}
	return nil
}

func (in *AdjustBalanceInput) Normalize() error {
	in.Description = strings.TrimSpace(in.Description)
	if in.UserID <= 0 {
		return invalid("user_id is required")
	}
	switch in.Type {
	case TxCreditTaken:
		if in.Delta <= 0 {
			return invalid("credit must add to the balance")
		}
	case TxBusinessPurchase:
		if in.Delta >= 0 {
			return invalid("business purchase must take from the balance")
		}
	default:
		return invalid("unknown balance change %q", in.Type)
	}
	return nil
}

func (in PurchaseInput) validate() error {
	if in.BuyerID <= 0 {
		return invalid("buyer_id is required")
	}
	if in.ListingID <= 0 {
		return invalid("listing id is required")
	}
	return nil
}

func validateEntityName(name string) error {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return invalid("name is required")
	}
	if len(clean) > 128 {
		return invalid("name too long (max 128 chars)")
	}
	lower := strings.ToLower(clean)
	for _, fragment := range blockedNameFragments {
		if strings.Contains(lower, fragment) {
			return invalid("name contains blocked content")
		}
	}
	return nil
}
