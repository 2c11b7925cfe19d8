package phone

import (
	"context"
	"fmt"
	"strings"

	"banksim/internal/bank"
)

func (p *Phone) Products(ctx context.Context) ([]bank.Product, error) {
	items, err := p.api.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load marketplace: %w", err)
	}
	return items, nil
}

func (p *Phone) BuyProduct(ctx context.Context, product bank.Product) (bank.PurchaseResult, error) {
	cur, err := p.current()
	if err != nil {
		return bank.PurchaseResult{}, err
	}
	if product.SellerID == cur.ID {
		return bank.PurchaseResult{}, reject("product", ErrSelfTrade, "%s", product.Name)
	}
	if cur.Balance < product.Price {
		return bank.PurchaseResult{}, reject("balance", ErrInsufficientFunds, "%s costs %d, balance is %d", product.Name, product.Price, cur.Balance)
	}

	res, err := p.api.BuyProduct(ctx, cur.ID, product.ID)
	if err != nil {
		return bank.PurchaseResult{}, fmt.Errorf("buy product: %w", err)
	}
	p.setBalance(res.BuyerBalance)
	return res, nil
}

func (p *Phone) SellProduct(ctx context.Context, name string, price int64, description, imageURL string) (bank.Product, error) {
	cur, err := p.current()
	if err != nil {
		return bank.Product{}, err
	}
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	switch {
	case name == "":
		return bank.Product{}, reject("name", ErrMissingField, "product name is required")
	case description == "":
		return bank.Product{}, reject("description", ErrMissingField, "description is required")
	case price <= 0:
		return bank.Product{}, reject("price", ErrInvalidAmount, "got %d", price)
	}

	product, err := p.api.CreateProduct(ctx, bank.CreateProductInput{
		SellerID:    cur.ID,
		Name:        name,
		Price:       price,
		Description: description,
		ImageURL:    strings.TrimSpace(imageURL),
	})
	if err != nil {
		return bank.Product{}, fmt.Errorf("list product: %w", err)
	}
	return product, nil
}

// Properties lists unsold real estate whose title or address contains query,
// ignoring case. An empty query returns everything.
func (p *Phone) Properties(ctx context.Context, query string) ([]bank.Property, error) {
	items, err := p.api.ListProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("load real estate: %w", err)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return items, nil
	}
	out := make([]bank.Property, 0, len(items))
	for _, it := range items {
		if containsFold(it.Title, query) || containsFold(it.Address, query) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (p *Phone) BuyProperty(ctx context.Context, property bank.Property) (bank.PurchaseResult, error) {
	cur, err := p.current()
	if err != nil {
		return bank.PurchaseResult{}, err
	}
	if property.SellerID == cur.ID {
		return bank.PurchaseResult{}, reject("property", ErrSelfTrade, "%s", property.Title)
	}
	if cur.Balance < property.Price {
		return bank.PurchaseResult{}, reject("balance", ErrInsufficientFunds, "%s costs %d, balance is %d", property.Title, property.Price, cur.Balance)
	}

	res, err := p.api.BuyProperty(ctx, cur.ID, property.ID)
	if err != nil {
		return bank.PurchaseResult{}, fmt.Errorf("buy property: %w", err)
	}
	p.setBalance(res.BuyerBalance)
	return res, nil
}

type PropertyListing struct {
	Title       string
	Price       int64
	Address     string
	Rooms       int32
	Area        float64
	Description string
	ImageURL    string
}

func (p *Phone) SellProperty(ctx context.Context, in PropertyListing) (bank.Property, error) {
	cur, err := p.current()
	if err != nil {
		return bank.Property{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Address = strings.TrimSpace(in.Address)
	switch {
	case in.Title == "":
		return bank.Property{}, reject("title", ErrMissingField, "title is required")
	case in.Address == "":
		return bank.Property{}, reject("address", ErrMissingField, "address is required")
	case in.Price <= 0:
		return bank.Property{}, reject("price", ErrInvalidAmount, "got %d", in.Price)
	}
	if in.Rooms <= 0 {
		in.Rooms = bank.DefaultRooms
	}
	if in.Area < 0 {
		in.Area = 0
	}

	property, err := p.api.CreateProperty(ctx, bank.CreatePropertyInput{
		SellerID:    cur.ID,
		Title:       in.Title,
		Price:       in.Price,
		Address:     in.Address,
		Rooms:       in.Rooms,
		Area:        in.Area,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	})
	if err != nil {
		return bank.Property{}, fmt.Errorf("list property: %w", err)
	}
	return property, nil
}
