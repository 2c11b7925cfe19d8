package bank

import (
	"fmt"
	"strings"
)

type DepositTemplate struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Rate       float64 `json:"rate"`
	MinAmount  int64   `json:"min_amount"`
	TermMonths int32   `json:"term_months"`
}

type CreditTemplate struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Rate       float64 `json:"rate"`
	MaxAmount  int64   `json:"max_amount"`
	TermMonths int32   `json:"term_months"`
}

type BusinessTemplate struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Cost          int64  `json:"cost"`
	MonthlyIncome int64  `json:"monthly_income"`
	Description   string `json:"description"`
}

type Catalog struct {
	Deposits   []DepositTemplate  `json:"deposits"`
	Credits    []CreditTemplate   `json:"credits"`
	Businesses []BusinessTemplate `json:"businesses"`
}

var depositCatalog = []DepositTemplate{
	{ID: "1", Name: "Savings", Rate: 8.5, MinAmount: 10_000, TermMonths: 12},
	{ID: "2", Name: "Top-up", Rate: 7.2, MinAmount: 5_000, TermMonths: 6},
	{ID: "3", Name: "Maximum Income", Rate: 10.0, MinAmount: 50_000, TermMonths: 24},
}

var creditCatalog = []CreditTemplate{
	{ID: "1", Name: "Consumer", Rate: 12.9, MaxAmount: 500_000, TermMonths: 60},
	{ID: "2", Name: "Express", Rate: 15.5, MaxAmount: 100_000, TermMonths: 12},
	{ID: "3", Name: "Preferential", Rate: 9.9, MaxAmount: 300_000, TermMonths: 36},
}

var businessCatalog = []BusinessTemplate{
	{ID: "1", Name: "Coffee Shop", Cost: 500_000, MonthlyIncome: 50_000, Description: "Small coffee shop in the city centre"},
	{ID: "2", Name: "Online Store", Cost: 200_000, MonthlyIncome: 30_000, Description: "Online retail of everyday goods"},
	{ID: "3", Name: "Car Wash", Cost: 800_000, MonthlyIncome: 80_000, Description: "Car wash with 4 bays"},
	{ID: "4", Name: "Food Delivery", Cost: 300_000, MonthlyIncome: 40_000, Description: "Ready-made food delivery service"},
}

// DefaultCatalog returns copies, callers may modify them freely.
func DefaultCatalog() Catalog {
	return Catalog{
		Deposits:   append([]DepositTemplate(nil), depositCatalog...),
		Credits:    append([]CreditTemplate(nil), creditCatalog...),
		Businesses: append([]BusinessTemplate(nil), businessCatalog...),
	}
}

func DepositTemplateByID(id string) (DepositTemplate, error) {
	id = strings.TrimSpace(id)
	for _, t := range depositCatalog {
		if t.ID == id {
			return t, nil
		}
	}
	return DepositTemplate{}, invalid("unknown deposit template: %s", id)
}

func CreditTemplateByID(id string) (CreditTemplate, error) {
	id = strings.TrimSpace(id)
	for _, t := range creditCatalog {
		if t.ID == id {
			return t, nil
		}
	}
	return CreditTemplate{}, invalid("unknown credit template: %s", id)
}

func BusinessTemplateByID(id string) (BusinessTemplate, error) {
	id = strings.TrimSpace(id)
	for _, t := range businessCatalog {
		if t.ID == id {
			return t, nil
		}
	}
	return BusinessTemplate{}, invalid("unknown business: %s", id)
}

func (t DepositTemplate) Term() string {
	return termLabel(t.TermMonths)
}

func (t CreditTemplate) Term() string {
	return termLabel(t.TermMonths)
}

func termLabel(months int32) string {
	if months == 1 {
		return "1 month"
	}
	return fmt.Sprintf("%d months", months)
}
