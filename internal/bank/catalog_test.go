package bank

import (
	"errors"
	"testing"
)

func TestDefaultCatalogIsACopy(t *testing.T) {
	c := DefaultCatalog()
	if len(c.Deposits) != 3 || len(c.Credits) != 3 || len(c.Businesses) != 4 {
		t.Fatalf("unexpected catalog sizes: %d %d %d", len(c.Deposits), len(c.Credits), len(c.Businesses))
	}
	c.Deposits[0].MinAmount = 1
	again := DefaultCatalog()
	if again.Deposits[0].MinAmount != 10_000 {
		t.Fatalf("catalog mutated through returned copy: %d", again.Deposits[0].MinAmount)
	}
}

func TestTemplateLookups(t *testing.T) {
	d, err := DepositTemplateByID("3")
	if err != nil {
		t.Fatalf("deposit lookup: %v", err)
	}
	if d.Name != "Maximum Income" || d.MinAmount != 50_000 || d.TermMonths != 24 {
		t.Fatalf("unexpected deposit template: %+v", d)
	}
	c, err := CreditTemplateByID(" 2 ")
	if err != nil {
		t.Fatalf("credit lookup: %v", err)
	}
	if c.MaxAmount != 100_000 {
		t.Fatalf("unexpected credit template: %+v", c)
	}
	b, err := BusinessTemplateByID("4")
	if err != nil {
		t.Fatalf("business lookup: %v", err)
	}
	if b.Cost != 300_000 || b.MonthlyIncome != 40_000 {
		t.Fatalf("unexpected business template: %+v", b)
	}
	if _, err := DepositTemplateByID("9"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected unknown template to fail, got %v", err)
	}
}

func TestTermLabel(t *testing.T) {
	if got := (DepositTemplate{TermMonths: 1}).Term(); got != "1 month" {
		t.Fatalf("got %q", got)
	}
	if got := (CreditTemplate{TermMonths: 60}).Term(); got != "60 months" {
		t.Fatalf("got %q", got)
	}
}
