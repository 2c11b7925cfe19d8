package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var botNames = []string{
	"Alexey", "Maria", "Dmitry", "Anna", "Sergey", "Elena",
	"Ivan", "Olga", "Andrey", "Natalia", "Mikhail", "Tatiana",
}

// BotPolicy controls how many listings a bot round looks at and how likely
// each one is to be bought.
type BotPolicy struct {
	ProductSample  int
	ProductChance  float64
	PropertySample int
	PropertyChance float64
	MinBotBalance  int64
	MaxBotBalance  int64
}

func DefaultBotPolicy() BotPolicy {
	return BotPolicy{
		ProductSample:  3,
		ProductChance:  0.3,
		PropertySample: 2,
		PropertyChance: 0.2,
		MinBotBalance:  BotMinBalance,
		MaxBotBalance:  BotMaxBalance,
	}
}

func (p BotPolicy) normalized() BotPolicy {
	def := DefaultBotPolicy()
	if p.ProductSample < 0 {
		p.ProductSample = 0
	}
	if p.PropertySample < 0 {
		p.PropertySample = 0
	}
	if p.MinBotBalance <= 0 {
		p.MinBotBalance = def.MinBotBalance
	}
	if p.MaxBotBalance < p.MinBotBalance {
		p.MaxBotBalance = p.MinBotBalance
	}
	return p
}

// botUsername builds bot_<Name>_<1000..9999> from two random draws.
func botUsername(nameIdx, suffix int) string {
	return fmt.Sprintf("bot_%s_%d", botNames[nameIdx%len(botNames)], 1000+suffix%9000)
}

// RunBotTick simulates one round of market activity: a handful of random
// unsold listings are each bought by a freshly registered bot with some
// probability.
func (s *Service) RunBotTick(ctx context.Context) (BotTickResult, error) {
	return s.RunBotTickWithPolicy(ctx, DefaultBotPolicy())
}

func (s *Service) RunBotTickWithPolicy(ctx context.Context, policy BotPolicy) (BotTickResult, error) {
	policy = policy.normalized()
	made := 0

	products, err := s.sampleUnsold(ctx, productListing, policy.ProductSample)
	if err != nil {
		return BotTickResult{}, err
	}
	for _, id := range products {
		if s.nextFloat() >= policy.ProductChance {
			continue
		}
		ok, err := s.botBuy(ctx, policy, productListing, id)
		if err != nil {
			return BotTickResult{}, err
		}
		if ok {
			made++
		}
	}

	properties, err := s.sampleUnsold(ctx, propertyListing, policy.PropertySample)
	if err != nil {
		return BotTickResult{}, err
	}
	for _, id := range properties {
		if s.nextFloat() >= policy.PropertyChance {
			continue
		}
		ok, err := s.botBuy(ctx, policy, propertyListing, id)
		if err != nil {
			return BotTickResult{}, err
		}
		if ok {
			made++
		}
	}

	if made > 0 {
		s.log.Info("bot round finished", "purchases_made", made)
	}
	return BotTickResult{PurchasesMade: made, Timestamp: time.Now().UTC()}, nil
}

func (s *Service) sampleUnsold(ctx context.Context, l listing, n int) ([]int64, error) {
	if n == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id FROM %s
		WHERE is_sold = false
		ORDER BY random()
		LIMIT $1
	`, l.table), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// botBuy registers a new bot and tries to buy the listing with it. A bot that
// cannot afford the listing, or loses the race for it, stays registered and
// the purchase is simply not counted.
func (s *Service) botBuy(ctx context.Context, policy BotPolicy, l listing, listingID int64) (bool, error) {
	span := policy.MaxBotBalance - policy.MinBotBalance + 1
	balance := policy.MinBotBalance + int64(s.nextIntn(int(span)))
	username := botUsername(s.nextIntn(len(botNames)), s.nextIntn(9000))

	bot, err := s.insertUser(ctx, s.db, username, balance, true)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			s.log.Debug("bot username collision", "username", username)
			return false, nil
		}
		return false, err
	}

	err = s.inSerializableTx(ctx, func(tx pgx.Tx) error {
		_, err := buyListingTx(ctx, tx, l, bot.ID, listingID, TxBotPurchase)
		return err
	})
	switch {
	case err == nil:
		s.log.Debug("bot purchase", "bot", bot.Username, "table", l.table, "listing_id", listingID)
		return true, nil
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, l.notAvailable), errors.Is(err, ErrTxConflict):
		return false, nil
	default:
		return false, err
	}
}
