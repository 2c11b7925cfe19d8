package phone

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banksim/internal/bank"
)

type fakeAPI struct {
	user       bank.User
	products   []bank.Product
	properties []bank.Property

	adjustments    []int64
	deposits       []bank.CreateDepositInput
	productBuys    []int64
	propertyBuys   []int64
	createdProduct []bank.CreateProductInput
	createdProp    []bank.CreatePropertyInput

	failWith error
}

func (f *fakeAPI) GetUser(_ context.Context, id int64) (bank.User, error) {
	if id != f.user.ID {
		return bank.User{}, bank.ErrUserNotFound
	}
	return f.user, nil
}

func (f *fakeAPI) CreateUser(_ context.Context, username string) (bank.User, error) {
	f.user = bank.User{ID: 1, Username: username, Balance: bank.StarterBalance}
	return f.user, nil
}

func (f *fakeAPI) AdjustBalance(_ context.Context, in bank.AdjustBalanceInput) (bank.User, error) {
	if f.failWith != nil {
		return bank.User{}, f.failWith
	}
	if f.user.Balance+in.Delta < 0 {
		return bank.User{}, bank.ErrInsufficientFunds
	}
	f.adjustments = append(f.adjustments, in.Delta)
	f.user.Balance += in.Delta
	return f.user, nil
}

func (f *fakeAPI) ListTransactions(context.Context, int64, int) ([]bank.Transaction, error) {
	return nil, nil
}

func (f *fakeAPI) ListDeposits(context.Context, int64) ([]bank.Deposit, error) { return nil, nil }

func (f *fakeAPI) CreateDeposit(_ context.Context, in bank.CreateDepositInput) (bank.Deposit, error) {
	if f.failWith != nil {
		return bank.Deposit{}, f.failWith
	}
	f.deposits = append(f.deposits, in)
	f.user.Balance -= in.Amount
	return bank.Deposit{ID: 1, UserID: in.UserID, DepositName: in.DepositName, Amount: in.Amount}, nil
}

func (f *fakeAPI) ListProducts(context.Context) ([]bank.Product, error) { return f.products, nil }

func (f *fakeAPI) CreateProduct(_ context.Context, in bank.CreateProductInput) (bank.Product, error) {
	f.createdProduct = append(f.createdProduct, in)
	return bank.Product{ID: 5, SellerID: in.SellerID, Name: in.Name, Price: in.Price}, nil
}

func (f *fakeAPI) BuyProduct(_ context.Context, _ int64, productID int64) (bank.PurchaseResult, error) {
	if f.failWith != nil {
		return bank.PurchaseResult{}, f.failWith
	}
	f.productBuys = append(f.productBuys, productID)
	for _, p := range f.products {
		if p.ID == productID {
			f.user.Balance -= p.Price
			return bank.PurchaseResult{ListingID: productID, Price: p.Price, BuyerBalance: f.user.Balance}, nil
		}
	}
	return bank.PurchaseResult{}, bank.ErrProductNotAvailable
}

func (f *fakeAPI) ListProperties(context.Context) ([]bank.Property, error) { return f.properties, nil }

func (f *fakeAPI) CreateProperty(_ context.Context, in bank.CreatePropertyInput) (bank.Property, error) {
	f.createdProp = append(f.createdProp, in)
	return bank.Property{ID: 6, SellerID: in.SellerID, Title: in.Title, Rooms: in.Rooms}, nil
}

func (f *fakeAPI) BuyProperty(_ context.Context, _ int64, propertyID int64) (bank.PurchaseResult, error) {
	f.propertyBuys = append(f.propertyBuys, propertyID)
	for _, p := range f.properties {
		if p.ID == propertyID {
			f.user.Balance -= p.Price
			return bank.PurchaseResult{ListingID: propertyID, Price: p.Price, BuyerBalance: f.user.Balance}, nil
		}
	}
	return bank.PurchaseResult{}, bank.ErrPropertyNotAvailable
}

type memLedger struct {
	ids     map[int64][]string
	failSet error
}

func (m *memLedger) Owned(userID int64) ([]string, error) {
	return append([]string(nil), m.ids[userID]...), nil
}

func (m *memLedger) SetOwned(userID int64, ids []string) error {
	if m.failSet != nil {
		return m.failSet
	}
	if m.ids == nil {
		m.ids = map[int64][]string{}
	}
	m.ids[userID] = append([]string(nil), ids...)
	return nil
}

func signedIn(t *testing.T, balance int64) (*Phone, *fakeAPI, *memLedger) {
	t.Helper()
	api := &fakeAPI{user: bank.User{ID: 1, Username: "ivan", Balance: balance}}
	ledger := &memLedger{}
	p := New(api, ledger, nil)
	_, err := p.SignIn(context.Background(), 1)
	require.NoError(t, err)
	return p, api, ledger
}

func TestNotSignedIn(t *testing.T) {
	p := New(&fakeAPI{}, &memLedger{}, nil)
	_, err := p.OpenDeposit(context.Background(), "1", 10_000)
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSignUpStartsWithStarterBalance(t *testing.T) {
	p := New(&fakeAPI{}, &memLedger{}, nil)
	u, err := p.SignUp(context.Background(), "maria")
	require.NoError(t, err)
	assert.Equal(t, bank.StarterBalance, u.Balance)
	assert.Equal(t, bank.StarterBalance, p.Balance())

	_, err = p.SignUp(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestDepositBelowMinimumDoesNotMutate(t *testing.T) {
	p, api, _ := signedIn(t, 170_000)

	_, err := p.OpenDeposit(context.Background(), "1", 9_999)
	require.ErrorIs(t, err, ErrBelowMinimum)
	assert.True(t, IsValidation(err))
	assert.Equal(t, int64(170_000), p.Balance())
	assert.Empty(t, api.deposits)
	assert.Empty(t, api.adjustments)
}

func TestDepositAboveBalanceRejected(t *testing.T) {
	p, api, _ := signedIn(t, 20_000)
	_, err := p.OpenDeposit(context.Background(), "1", 30_000)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Empty(t, api.deposits)
}

func TestOpenDeposit(t *testing.T) {
	p, api, _ := signedIn(t, 170_000)

	dep, err := p.OpenDeposit(context.Background(), "3", 50_000)
	require.NoError(t, err)
	assert.Equal(t, "Maximum Income", dep.DepositName)
	require.Len(t, api.deposits, 1)
	assert.Equal(t, bank.CreateDepositInput{UserID: 1, DepositName: "Maximum Income", Amount: 50_000, Rate: 10.0, TermMonths: 24}, api.deposits[0])
	assert.Equal(t, int64(120_000), p.Balance())
}

func TestDepositRemoteFailureKeepsBalance(t *testing.T) {
	p, api, _ := signedIn(t, 170_000)
	api.failWith = errors.New("connection refused")

	_, err := p.OpenDeposit(context.Background(), "1", 10_000)
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.Equal(t, int64(170_000), p.Balance())
}

func TestTakeCredit(t *testing.T) {
	p, api, _ := signedIn(t, 170_000)

	_, err := p.TakeCredit(context.Background(), "2", 100_001)
	require.ErrorIs(t, err, ErrAboveMaximum)
	_, err = p.TakeCredit(context.Background(), "2", 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, api.adjustments)

	balance, err := p.TakeCredit(context.Background(), "2", 100_000)
	require.NoError(t, err)
	assert.Equal(t, int64(270_000), balance)
	assert.Equal(t, []int64{100_000}, api.adjustments)
}

func TestBuyBusiness(t *testing.T) {
	p, api, ledger := signedIn(t, 600_000)

	_, err := p.BuyBusiness(context.Background(), "3")
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Empty(t, api.adjustments)

	b, err := p.BuyBusiness(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Coffee Shop", b.Name)
	assert.Equal(t, int64(100_000), p.Balance())
	assert.Equal(t, []string{"1"}, ledger.ids[1])

	_, err = p.BuyBusiness(context.Background(), "1")
	require.ErrorIs(t, err, ErrAlreadyOwned)

	income, err := p.MonthlyIncome()
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), income)
}

func TestCreditKeepsServerSideChanges(t *testing.T) {
	p, api, _ := signedIn(t, 100_000)
	// a bot bought one of our listings after sign-in
	api.user.Balance += 50_000

	balance, err := p.TakeCredit(context.Background(), "2", 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(160_000), balance)
	assert.Equal(t, int64(160_000), api.user.Balance)
	assert.Equal(t, int64(160_000), p.Balance())
}

func TestBusinessPurchaseKeepsServerSideChanges(t *testing.T) {
	p, api, _ := signedIn(t, 600_000)
	api.user.Balance += 50_000

	_, err := p.BuyBusiness(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int64(150_000), api.user.Balance)
	assert.Equal(t, int64(150_000), p.Balance())
}

func TestBusinessesArePerUser(t *testing.T) {
	ledger := &memLedger{}
	first := New(&fakeAPI{user: bank.User{ID: 1, Username: "ivan", Balance: 600_000}}, ledger, nil)
	_, err := first.SignIn(context.Background(), 1)
	require.NoError(t, err)
	_, err = first.BuyBusiness(context.Background(), "1")
	require.NoError(t, err)

	second := New(&fakeAPI{user: bank.User{ID: 2, Username: "olga", Balance: 600_000}}, ledger, nil)
	_, err = second.SignIn(context.Background(), 2)
	require.NoError(t, err)

	owned, err := second.OwnedBusinesses()
	require.NoError(t, err)
	assert.Empty(t, owned)
	income, err := second.MonthlyIncome()
	require.NoError(t, err)
	assert.Zero(t, income)

	_, err = second.BuyBusiness(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ledger.ids[1])
	assert.Equal(t, []string{"1"}, ledger.ids[2])
}

func TestBuyBusinessPaymentFailureRestoresLedger(t *testing.T) {
	p, api, ledger := signedIn(t, 600_000)
	api.failWith = errors.New("connection refused")

	_, err := p.BuyBusiness(context.Background(), "1")
	require.Error(t, err)
	assert.Empty(t, ledger.ids[1])
	assert.Equal(t, int64(600_000), p.Balance())
}

func TestBuyBusinessLedgerFailureTakesNoMoney(t *testing.T) {
	p, api, ledger := signedIn(t, 600_000)
	ledger.failSet = errors.New("disk full")

	_, err := p.BuyBusiness(context.Background(), "1")
	require.Error(t, err)
	assert.Empty(t, api.adjustments)
	assert.Equal(t, int64(600_000), api.user.Balance)
}

func TestBuyProductInsufficientFundsMakesNoRemoteCall(t *testing.T) {
	p, api, _ := signedIn(t, 1_000)
	api.products = []bank.Product{{ID: 9, SellerID: 2, Name: "Laptop", Price: 150_000}}

	_, err := p.BuyProduct(context.Background(), api.products[0])
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Empty(t, api.productBuys)
	assert.Equal(t, int64(1_000), p.Balance())
}

func TestBuyOwnListingRejected(t *testing.T) {
	p, api, _ := signedIn(t, 1_000_000)
	own := bank.Product{ID: 9, SellerID: 1, Name: "Old bike", Price: 10}
	_, err := p.BuyProduct(context.Background(), own)
	require.ErrorIs(t, err, ErrSelfTrade)
	assert.Empty(t, api.productBuys)

	_, err = p.BuyProperty(context.Background(), bank.Property{ID: 4, SellerID: 1, Title: "My flat", Price: 10})
	require.ErrorIs(t, err, ErrSelfTrade)
	assert.Empty(t, api.propertyBuys)
}

func TestBuyProductUpdatesBalance(t *testing.T) {
	p, api, _ := signedIn(t, 170_000)
	api.products = []bank.Product{{ID: 9, SellerID: 2, Name: "PlayStation 5", Price: 55_000}}

	res, err := p.BuyProduct(context.Background(), api.products[0])
	require.NoError(t, err)
	assert.Equal(t, int64(115_000), res.BuyerBalance)
	assert.Equal(t, int64(115_000), p.Balance())
	assert.Equal(t, []int64{9}, api.productBuys)
}

func TestSellProductRequiresFields(t *testing.T) {
	p, api, _ := signedIn(t, 0)

	_, err := p.SellProduct(context.Background(), "", 100, "desc", "")
	require.ErrorIs(t, err, ErrMissingField)
	_, err = p.SellProduct(context.Background(), "Lamp", 100, " ", "")
	require.ErrorIs(t, err, ErrMissingField)
	_, err = p.SellProduct(context.Background(), "Lamp", 0, "desk lamp", "")
	require.ErrorIs(t, err, ErrInvalidAmount)
	assert.Empty(t, api.createdProduct)

	_, err = p.SellProduct(context.Background(), " Lamp ", 100, "desk lamp", "")
	require.NoError(t, err)
	require.Len(t, api.createdProduct, 1)
	assert.Equal(t, "Lamp", api.createdProduct[0].Name)
	assert.Equal(t, int64(1), api.createdProduct[0].SellerID)
}

func TestPropertiesFilter(t *testing.T) {
	p, api, _ := signedIn(t, 0)
	api.properties = []bank.Property{
		{ID: 1, Title: "Studio near the park", Address: "12 Lenina St"},
		{ID: 2, Title: "Two-room flat", Address: "5 Mira Ave"},
	}

	all, err := p.Properties(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byTitle, err := p.Properties(context.Background(), "STUDIO")
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, int64(1), byTitle[0].ID)

	byAddress, err := p.Properties(context.Background(), "mira")
	require.NoError(t, err)
	require.Len(t, byAddress, 1)
	assert.Equal(t, int64(2), byAddress[0].ID)
}

func TestSellPropertyDefaults(t *testing.T) {
	p, api, _ := signedIn(t, 0)

	_, err := p.SellProperty(context.Background(), PropertyListing{Title: "Flat", Price: 100})
	require.ErrorIs(t, err, ErrMissingField)

	_, err = p.SellProperty(context.Background(), PropertyListing{Title: "Flat", Address: "1 Main St", Price: 100, Area: -3})
	require.NoError(t, err)
	require.Len(t, api.createdProp, 1)
	assert.Equal(t, bank.DefaultRooms, api.createdProp[0].Rooms)
	assert.Equal(t, float64(0), api.createdProp[0].Area)
}

func TestRefreshFollowsServerBalance(t *testing.T) {
	p, api, _ := signedIn(t, 100)
	api.user.Balance = 5_100
	u, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5_100), u.Balance)
	assert.Equal(t, int64(5_100), p.Balance())
}
