package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"banksim/internal/bank"
	cl "banksim/internal/cli"
	"banksim/internal/config"
	"banksim/internal/gameclock"
	"banksim/internal/kvstore"
	"banksim/internal/phone"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	cfg, err := config.LoadPhoneDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "phone",
		Short:        "Banking and marketplace phone simulator",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase, cfg),
		newLoginCmd(&apiBase, cfg),
		newLogoutCmd(),
		newWhoamiCmd(&apiBase, cfg),
		newClockCmd(cfg),
		newBankCmd(&apiBase, cfg),
		newBusinessCmd(&apiBase, cfg),
		newMarketCmd(&apiBase, cfg),
		newRealtyCmd(&apiBase, cfg),
		newHistoryCmd(&apiBase, cfg),
		newBotCmd(&apiBase),
		newRunCmd(&apiBase, cfg),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

// app bundles everything a command needs: local store, API client, the
// phone app layer and the game clock.
type app struct {
	cfg      config.PhoneConfig
	log      *slog.Logger
	store    *kvstore.FileStore
	client   *cl.Client
	sessions *cl.Sessions
	phone    *phone.Phone
	clock    *gameclock.Clock
}

func newLogger(cfg config.PhoneConfig, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openApp(apiBase *string, cfg config.PhoneConfig, logger *slog.Logger) (*app, error) {
	store, err := kvstore.OpenDefault()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = newLogger(cfg, os.Stderr)
	}
	client := cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
	return &app{
		cfg:      cfg,
		log:      logger,
		store:    store,
		client:   client,
		sessions: cl.NewSessions(store),
		phone:    phone.New(client, cl.NewBusinessStore(store), logger),
		clock:    gameclock.New(cl.NewClockStore(store), clockwork.NewRealClock(), logger).WithEpochYear(cfg.EpochYear),
	}, nil
}

// signedInApp opens the app and loads the saved user from the API.
func signedInApp(ctx context.Context, apiBase *string, cfg config.PhoneConfig) (*app, error) {
	a, err := openApp(apiBase, cfg, nil)
	if err != nil {
		return nil, err
	}
	sess, err := a.sessions.Load()
	if err != nil {
		return nil, err
	}
	if _, err := a.phone.SignIn(ctx, sess.UserID); err != nil {
		return nil, err
	}
	return a, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newSignupCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "signup [username]",
		Short: "Create a new player",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := ""
			if len(args) == 1 {
				username = args[0]
			} else {
				var err error
				if username, err = promptRequired("Username"); err != nil {
					return err
				}
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := openApp(apiBase, cfg, nil)
			if err != nil {
				return err
			}
			u, err := a.phone.SignUp(ctx, username)
			if err != nil {
				return err
			}
			if err := a.sessions.Save(cl.Session{UserID: u.ID, Username: u.Username}); err != nil {
				return err
			}
			if _, err := a.clock.Initialize(ctx); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Welcome, %s! Starting balance: %s", u.Username, formatRub(u.Balance)))
			return nil
		},
	}
}

func newLoginCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "login <user-id>",
		Short: "Use an existing player on this device",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := int64FromArgOrPrompt(args, 0, "User ID")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := openApp(apiBase, cfg, nil)
			if err != nil {
				return err
			}
			u, err := a.phone.SignIn(ctx, userID)
			if err != nil {
				return err
			}
			if err := a.sessions.Save(cl.Session{UserID: u.ID, Username: u.Username}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Signed in as %s.", u.Username))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the player on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kvstore.OpenDefault()
			if err != nil {
				return err
			}
			if err := cl.NewSessions(store).Clear(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Aliases: []string{"balance"},
		Short:   "Show the player, balance and game year",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			st, err := a.clock.Initialize(ctx)
			if err != nil {
				return err
			}
			renderUser(a.phone.User(), a.clock.Read(st))
			return nil
		},
	}
}

func newClockCmd(cfg config.PhoneConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "clock",
		Short: "Show the game year and time to the next one",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := kvstore.OpenDefault()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			clock := gameclock.New(cl.NewClockStore(store), clockwork.NewRealClock(), logger).WithEpochYear(cfg.EpochYear)
			st, err := clock.Initialize(cmd.Context())
			if err != nil {
				return err
			}
			renderClock(clock.Read(st))
			return nil
		},
	}
}

func newBankCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Deposits and credits",
	}

	templates := &cobra.Command{
		Use:   "templates",
		Short: "List deposit and credit offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			renderBankTemplates(bank.DefaultCatalog())
			return nil
		},
	}

	deposits := &cobra.Command{
		Use:   "deposits",
		Short: "List your deposits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			items, err := a.phone.Deposits(ctx)
			if err != nil {
				return err
			}
			renderDeposits(items)
			return nil
		},
	}

	deposit := &cobra.Command{
		Use:   "deposit <template-id> <amount>",
		Short: "Open a deposit",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			templateID, err := stringFromArgOrPrompt(args, 0, "Deposit template ID")
			if err != nil {
				return err
			}
			amount, err := int64FromArgOrPrompt(args, 1, "Amount")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			dep, err := a.phone.OpenDeposit(ctx, templateID, amount)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Deposit %q opened for %s at %.1f%% until %s.",
				dep.DepositName, formatRub(dep.Amount), dep.Rate, dep.ExpiresAt.Local().Format("2006-01-02")))
			printInfo("Balance: " + formatRub(a.phone.Balance()))
			return nil
		},
	}

	credit := &cobra.Command{
		Use:   "credit <template-id> <amount>",
		Short: "Take a credit",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			templateID, err := stringFromArgOrPrompt(args, 0, "Credit template ID")
			if err != nil {
				return err
			}
			amount, err := int64FromArgOrPrompt(args, 1, "Amount")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			balance, err := a.phone.TakeCredit(ctx, templateID, amount)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Credit of %s issued. Balance: %s", formatRub(amount), formatRub(balance)))
			return nil
		},
	}

	cmd.AddCommand(templates, deposits, deposit, credit)
	return cmd
}

func newBusinessCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business",
		Short: "Buy and review businesses",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List businesses for sale and the ones you own",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(apiBase, cfg, nil)
			if err != nil {
				return err
			}
			owned, err := a.phone.OwnedBusinesses()
			if err != nil {
				return err
			}
			renderBusinesses(bank.DefaultCatalog().Businesses, owned)
			return nil
		},
	}

	buy := &cobra.Command{
		Use:   "buy <business-id>",
		Short: "Buy a business",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := stringFromArgOrPrompt(args, 0, "Business ID")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			b, err := a.phone.BuyBusiness(ctx, id)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("You now own %s (+%s per month). Balance: %s",
				b.Name, formatRub(b.MonthlyIncome), formatRub(a.phone.Balance())))
			return nil
		},
	}

	cmd.AddCommand(list, buy)
	return cmd
}

func newMarketCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Marketplace of goods",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List products for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := openApp(apiBase, cfg, nil)
			if err != nil {
				return err
			}
			items, err := a.phone.Products(ctx)
			if err != nil {
				return err
			}
			renderProducts(items)
			return nil
		},
	}

	buy := &cobra.Command{
		Use:   "buy <product-id>",
		Short: "Buy a product",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := int64FromArgOrPrompt(args, 0, "Product ID")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			items, err := a.phone.Products(ctx)
			if err != nil {
				return err
			}
			product, ok := findProduct(items, id)
			if !ok {
				return bank.ErrProductNotAvailable
			}
			res, err := a.phone.BuyProduct(ctx, product)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s for %s. Balance: %s", product.Name, formatRub(res.Price), formatRub(res.BuyerBalance)))
			return nil
		},
	}

	sell := &cobra.Command{
		Use:   "sell",
		Short: "Put a product up for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := promptRequired("Name")
			if err != nil {
				return err
			}
			price, err := promptInt64("Price", 1)
			if err != nil {
				return err
			}
			description, err := promptRequired("Description")
			if err != nil {
				return err
			}
			imageURL, err := promptOptional("Image URL (optional)")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			p, err := a.phone.SellProduct(ctx, name, price, description, imageURL)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Listed #%d %s for %s.", p.ID, p.Name, formatRub(p.Price)))
			return nil
		},
	}

	cmd.AddCommand(list, buy, sell)
	return cmd
}

func newRealtyCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realty",
		Short: "Real estate listings",
	}

	list := &cobra.Command{
		Use:   "list [query]",
		Short: "List properties, optionally filtered by title or address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := openApp(apiBase, cfg, nil)
			if err != nil {
				return err
			}
			items, err := a.phone.Properties(ctx, query)
			if err != nil {
				return err
			}
			renderProperties(items)
			return nil
		},
	}

	buy := &cobra.Command{
		Use:   "buy <property-id>",
		Short: "Buy a property",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := int64FromArgOrPrompt(args, 0, "Property ID")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			items, err := a.phone.Properties(ctx, "")
			if err != nil {
				return err
			}
			property, ok := findProperty(items, id)
			if !ok {
				return bank.ErrPropertyNotAvailable
			}
			res, err := a.phone.BuyProperty(ctx, property)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bought %s for %s. Balance: %s", property.Title, formatRub(res.Price), formatRub(res.BuyerBalance)))
			return nil
		},
	}

	sell := &cobra.Command{
		Use:   "sell",
		Short: "Put a property up for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in phone.PropertyListing
			var err error
			if in.Title, err = promptRequired("Title"); err != nil {
				return err
			}
			if in.Price, err = promptInt64("Price", 1); err != nil {
				return err
			}
			if in.Address, err = promptRequired("Address"); err != nil {
				return err
			}
			rooms, err := promptOptional("Rooms [1]")
			if err != nil {
				return err
			}
			if n, err := strconv.ParseInt(rooms, 10, 32); err == nil {
				in.Rooms = int32(n)
			}
			area, err := promptOptional("Area m2 [0]")
			if err != nil {
				return err
			}
			if f, err := strconv.ParseFloat(area, 64); err == nil {
				in.Area = f
			}
			if in.Description, err = promptOptional("Description (optional)"); err != nil {
				return err
			}
			if in.ImageURL, err = promptOptional("Image URL (optional)"); err != nil {
				return err
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			p, err := a.phone.SellProperty(ctx, in)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Listed #%d %s for %s.", p.ID, p.Title, formatRub(p.Price)))
			return nil
		},
	}

	cmd.AddCommand(list, buy, sell)
	return cmd
}

func newHistoryCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Recent operations on your account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			a, err := signedInApp(ctx, apiBase, cfg)
			if err != nil {
				return err
			}
			items, err := a.phone.Transactions(ctx, limit)
			if err != nil {
				return err
			}
			renderTransactions(items, a.phone.User().ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of operations to show")
	return cmd
}

func newBotCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Market bots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Trigger one bot round now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			res, err := cl.NewClient(*apiBase).BotTick(ctx)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bots made %d purchase(s) at %s.", res.PurchasesMade, res.Timestamp.Local().Format("15:04:05")))
			return nil
		},
	})
	return cmd
}

func newRunCmd(apiBase *string, cfg config.PhoneConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Open the phone screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("run needs an interactive terminal")
			}
			a, err := openApp(apiBase, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				return err
			}
			sess, err := a.sessions.Load()
			if err != nil {
				return err
			}
			return runPhone(cmd.Context(), a, sess)
		},
	}
}

func findProduct(items []bank.Product, id int64) (bank.Product, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return bank.Product{}, false
}

func findProperty(items []bank.Property, id int64) (bank.Property, bool) {
	for _, it := range items {
		if it.ID == id {
			return it, true
		}
	}
	return bank.Property{}, false
}

func stringFromArgOrPrompt(args []string, idx int, label string) (string, error) {
	if len(args) > idx && strings.TrimSpace(args[idx]) != "" {
		return strings.TrimSpace(args[idx]), nil
	}
	return promptRequired(label)
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a whole number", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 0)
}
