package phone

import (
	"context"
	"fmt"
	"slices"

	"banksim/internal/bank"
)

func (p *Phone) Deposits(ctx context.Context) ([]bank.Deposit, error) {
	cur, err := p.current()
	if err != nil {
		return nil, err
	}
	items, err := p.api.ListDeposits(ctx, cur.ID)
	if err != nil {
		return nil, fmt.Errorf("load deposits: %w", err)
	}
	return items, nil
}

// OpenDeposit opens a deposit from a template. The server moves the amount
// off the balance in the same transaction.
func (p *Phone) OpenDeposit(ctx context.Context, templateID string, amount int64) (bank.Deposit, error) {
	cur, err := p.current()
	if err != nil {
		return bank.Deposit{}, err
	}
	tpl, err := bank.DepositTemplateByID(templateID)
	if err != nil {
		return bank.Deposit{}, reject("template", ErrUnknownTemplate, "deposit %q", templateID)
	}
	if amount < tpl.MinAmount {
		return bank.Deposit{}, reject("amount", ErrBelowMinimum, "minimum for %s is %d", tpl.Name, tpl.MinAmount)
	}
	if amount > cur.Balance {
		return bank.Deposit{}, reject("amount", ErrInsufficientFunds, "balance is %d", cur.Balance)
	}

	dep, err := p.api.CreateDeposit(ctx, bank.CreateDepositInput{
		UserID:      cur.ID,
		DepositName: tpl.Name,
		Amount:      amount,
		Rate:        tpl.Rate,
		TermMonths:  tpl.TermMonths,
	})
	if err != nil {
		return bank.Deposit{}, fmt.Errorf("open deposit: %w", err)
	}
	p.refreshAfter(ctx, cur.ID, cur.Balance-amount)
	return dep, nil
}

// TakeCredit credits the balance with amount under a credit template.
func (p *Phone) TakeCredit(ctx context.Context, templateID string, amount int64) (int64, error) {
	cur, err := p.current()
	if err != nil {
		return 0, err
	}
	tpl, err := bank.CreditTemplateByID(templateID)
	if err != nil {
		return 0, reject("template", ErrUnknownTemplate, "credit %q", templateID)
	}
	if amount <= 0 {
		return 0, reject("amount", ErrInvalidAmount, "got %d", amount)
	}
	if amount > tpl.MaxAmount {
		return 0, reject("amount", ErrAboveMaximum, "maximum for %s is %d", tpl.Name, tpl.MaxAmount)
	}

	u, err := p.api.AdjustBalance(ctx, bank.AdjustBalanceInput{
		UserID:      cur.ID,
		Delta:       amount,
		Type:        bank.TxCreditTaken,
		Description: tpl.Name,
	})
	if err != nil {
		return 0, fmt.Errorf("take credit: %w", err)
	}
	p.setUser(u)
	p.log.Info("credit taken", "template", tpl.Name, "amount", amount)
	return u.Balance, nil
}

// BuyBusiness pays the template cost and records the business as owned.
func (p *Phone) BuyBusiness(ctx context.Context, templateID string) (bank.BusinessTemplate, error) {
	cur, err := p.current()
	if err != nil {
		return bank.BusinessTemplate{}, err
	}
	tpl, err := bank.BusinessTemplateByID(templateID)
	if err != nil {
		return bank.BusinessTemplate{}, reject("template", ErrUnknownTemplate, "business %q", templateID)
	}
	owned, err := p.ledger.Owned(cur.ID)
	if err != nil {
		return bank.BusinessTemplate{}, fmt.Errorf("load businesses: %w", err)
	}
	if ownedContains(owned, tpl.ID) {
		return bank.BusinessTemplate{}, reject("business", ErrAlreadyOwned, "%s", tpl.Name)
	}
	if cur.Balance < tpl.Cost {
		return bank.BusinessTemplate{}, reject("balance", ErrInsufficientFunds, "%s costs %d", tpl.Name, tpl.Cost)
	}

	// Record ownership first so a paid business is never lost; undo it if
	// the payment fails.
	if err := p.ledger.SetOwned(cur.ID, append(slices.Clone(owned), tpl.ID)); err != nil {
		return bank.BusinessTemplate{}, fmt.Errorf("save businesses: %w", err)
	}
	u, err := p.api.AdjustBalance(ctx, bank.AdjustBalanceInput{
		UserID:      cur.ID,
		Delta:       -tpl.Cost,
		Type:        bank.TxBusinessPurchase,
		Description: tpl.Name,
	})
	if err != nil {
		if rbErr := p.ledger.SetOwned(cur.ID, owned); rbErr != nil {
			p.log.Error("restore businesses failed", "user_id", cur.ID, "err", rbErr)
		}
		return bank.BusinessTemplate{}, fmt.Errorf("buy business: %w", err)
	}
	p.setUser(u)
	return tpl, nil
}

func (p *Phone) OwnedBusinesses() ([]bank.BusinessTemplate, error) {
	cur, err := p.current()
	if err != nil {
		return nil, err
	}
	ids, err := p.ledger.Owned(cur.ID)
	if err != nil {
		return nil, fmt.Errorf("load businesses: %w", err)
	}
	out := make([]bank.BusinessTemplate, 0, len(ids))
	for _, id := range ids {
		tpl, err := bank.BusinessTemplateByID(id)
		if err != nil {
			p.log.Warn("unknown owned business skipped", "id", id)
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

// MonthlyIncome sums the income of every owned business.
func (p *Phone) MonthlyIncome() (int64, error) {
	owned, err := p.OwnedBusinesses()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range owned {
		total += b.MonthlyIncome
	}
	return total, nil
}
