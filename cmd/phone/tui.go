package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"banksim/internal/bank"
	cl "banksim/internal/cli"
	"banksim/internal/gameclock"
	"banksim/internal/poller"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"
)

const (
	clockRefresh = 100 * time.Millisecond
	// the balance is re-read every this many clock ticks
	userRefreshTicks = 50
	phoneWidth       = 48
	listRows         = 8
)

type screen int

const (
	screenHome screen = iota
	screenBank
	screenMarket
	screenRealty
	screenBusiness
)

var screenNames = []string{"Home", "Bank", "Market", "Realty", "Business"}

var (
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).Width(phoneWidth)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	tabStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	activeTab   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Underline(true)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type (
	clockTickMsg   time.Time
	refreshUserMsg struct{}
	userLoadedMsg  struct {
		user bank.User
		err  error
	}
	productsMsg struct {
		items []bank.Product
		err   error
	}
	propertiesMsg struct {
		items []bank.Property
		err   error
	}
	depositsMsg struct {
		items []bank.Deposit
		err   error
	}
	ownedMsg struct {
		items []bank.BusinessTemplate
		err   error
	}
	actionDoneMsg struct {
		text   string
		err    error
		reload screen
	}
	pollFailedMsg struct{ err error }
)

type phoneModel struct {
	ctx     context.Context
	app     *app
	userID  int64
	state   gameclock.State
	reading gameclock.Reading
	ticks   int

	screen screen
	cursor int

	products   []bank.Product
	properties []bank.Property
	deposits   []bank.Deposit
	owned      []bank.BusinessTemplate
	catalog    bank.Catalog

	search    textinput.Model
	searching bool
	bar       progress.Model
	spin      spinner.Model
	busy      bool

	status    string
	statusErr bool
}

func newPhoneModel(ctx context.Context, a *app, userID int64, st gameclock.State) phoneModel {
	search := textinput.New()
	search.Placeholder = "title or address"
	search.CharLimit = 64

	s := spinner.New()
	s.Spinner = spinner.Dot

	m := phoneModel{
		ctx:     ctx,
		app:     a,
		userID:  userID,
		state:   st,
		catalog: bank.DefaultCatalog(),
		search:  search,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(phoneWidth-4), progress.WithoutPercentage()),
		spin:    s,
	}
	m.reading = a.clock.Read(st)
	return m
}

// runPhone mounts the phone screen. The bot poller is started exactly once
// here and stopped when the screen closes.
func runPhone(ctx context.Context, a *app, sess cl.Session) error {
	st, err := a.clock.Initialize(ctx)
	if err != nil {
		return err
	}
	if _, err := a.phone.SignIn(ctx, sess.UserID); err != nil {
		return err
	}

	model := newPhoneModel(ctx, a, sess.UserID, st)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	bots := poller.New(
		poller.TargetFunc(func(ctx context.Context) error {
			if err := a.client.Poll(ctx); err != nil {
				return err
			}
			program.Send(refreshUserMsg{})
			return nil
		}),
		poller.Options{
			Interval: a.cfg.PollInterval,
			Clock:    clockwork.NewRealClock(),
			Sink: poller.ErrorSinkFunc(func(err error) {
				program.Send(pollFailedMsg{err: err})
			}),
			Logger: a.log,
		},
	)
	handle := bots.Start(ctx)
	defer handle.Stop()

	_, err = program.Run()
	return err
}

func clockTick() tea.Cmd {
	return tea.Tick(clockRefresh, func(t time.Time) tea.Msg { return clockTickMsg(t) })
}

func (m phoneModel) Init() tea.Cmd {
	return tea.Batch(clockTick(), m.spin.Tick, m.loadUser(), m.loadProducts(), m.loadProperties(), m.loadDeposits(), m.loadOwned())
}

func (m phoneModel) loadUser() tea.Cmd {
	return func() tea.Msg {
		u, err := m.app.phone.Refresh(m.ctx)
		return userLoadedMsg{user: u, err: err}
	}
}

func (m phoneModel) loadProducts() tea.Cmd {
	return func() tea.Msg {
		items, err := m.app.phone.Products(m.ctx)
		return productsMsg{items: items, err: err}
	}
}

func (m phoneModel) loadProperties() tea.Cmd {
	query := m.search.Value()
	return func() tea.Msg {
		items, err := m.app.phone.Properties(m.ctx, query)
		return propertiesMsg{items: items, err: err}
	}
}

func (m phoneModel) loadDeposits() tea.Cmd {
	return func() tea.Msg {
		items, err := m.app.phone.Deposits(m.ctx)
		return depositsMsg{items: items, err: err}
	}
}

func (m phoneModel) loadOwned() tea.Cmd {
	return func() tea.Msg {
		items, err := m.app.phone.OwnedBusinesses()
		return ownedMsg{items: items, err: err}
	}
}

func (m phoneModel) reload(s screen) tea.Cmd {
	switch s {
	case screenMarket:
		return tea.Batch(m.loadUser(), m.loadProducts())
	case screenRealty:
		return tea.Batch(m.loadUser(), m.loadProperties())
	case screenBank:
		return tea.Batch(m.loadUser(), m.loadDeposits())
	case screenBusiness:
		return tea.Batch(m.loadUser(), m.loadOwned())
	default:
		return m.loadUser()
	}
}

func (m phoneModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case clockTickMsg:
		m.reading = m.app.clock.Read(m.state)
		m.ticks++
		if m.ticks%userRefreshTicks == 0 {
			return m, tea.Batch(clockTick(), m.loadUser())
		}
		return m, clockTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case refreshUserMsg:
		return m, m.loadUser()

	case userLoadedMsg:
		if msg.err != nil {
			m.setStatus(msg.err)
		}
		return m, nil

	case productsMsg:
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.products = msg.items
		m.clampCursor()
		return m, nil

	case propertiesMsg:
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.properties = msg.items
		m.clampCursor()
		return m, nil

	case depositsMsg:
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.deposits = msg.items
		return m, nil

	case ownedMsg:
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.owned = msg.items
		return m, nil

	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.status, m.statusErr = msg.text, false
		return m, m.reload(msg.reload)

	case pollFailedMsg:
		m.status, m.statusErr = "bot poll failed: "+msg.err.Error(), true
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m phoneModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.searching = false
		m.search.Blur()
		m.cursor = 0
		return m, m.loadProperties()
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m phoneModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab", "right", "l":
		m.screen = (m.screen + 1) % screen(len(screenNames))
		m.cursor = 0
		return m, nil
	case "shift+tab", "left", "h":
		m.screen = (m.screen + screen(len(screenNames)) - 1) % screen(len(screenNames))
		m.cursor = 0
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		m.cursor++
		m.clampCursor()
		return m, nil
	case "r":
		return m, m.reload(m.screen)
	case "/":
		if m.screen == screenRealty {
			m.searching = true
			return m, m.search.Focus()
		}
	case "enter":
		if m.busy {
			return m, nil
		}
		if cmd := m.action(); cmd != nil {
			m.busy = true
			m.status = ""
			return m, cmd
		}
	}
	return m, nil
}

// action returns the command for enter on the current screen, if any.
func (m phoneModel) action() tea.Cmd {
	ph := m.app.phone
	ctx := m.ctx
	switch m.screen {
	case screenMarket:
		if m.cursor >= len(m.products) {
			return nil
		}
		product := m.products[m.cursor]
		return func() tea.Msg {
			res, err := ph.BuyProduct(ctx, product)
			return actionDoneMsg{text: fmt.Sprintf("Bought %s for %s", product.Name, formatRub(res.Price)), err: err, reload: screenMarket}
		}
	case screenRealty:
		if m.cursor >= len(m.properties) {
			return nil
		}
		property := m.properties[m.cursor]
		return func() tea.Msg {
			res, err := ph.BuyProperty(ctx, property)
			return actionDoneMsg{text: fmt.Sprintf("Bought %s for %s", property.Title, formatRub(res.Price)), err: err, reload: screenRealty}
		}
	case screenBank:
		if m.cursor >= len(m.catalog.Deposits) {
			return nil
		}
		tpl := m.catalog.Deposits[m.cursor]
		return func() tea.Msg {
			dep, err := ph.OpenDeposit(ctx, tpl.ID, tpl.MinAmount)
			return actionDoneMsg{text: fmt.Sprintf("Deposit %s opened: %s", dep.DepositName, formatRub(dep.Amount)), err: err, reload: screenBank}
		}
	case screenBusiness:
		if m.cursor >= len(m.catalog.Businesses) {
			return nil
		}
		tpl := m.catalog.Businesses[m.cursor]
		return func() tea.Msg {
			b, err := ph.BuyBusiness(ctx, tpl.ID)
			return actionDoneMsg{text: fmt.Sprintf("You now own %s", b.Name), err: err, reload: screenBusiness}
		}
	}
	return nil
}

func (m *phoneModel) setStatus(err error) {
	m.status, m.statusErr = err.Error(), true
}

func (m *phoneModel) clampCursor() {
	n := m.rows()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m phoneModel) rows() int {
	switch m.screen {
	case screenMarket:
		return len(m.products)
	case screenRealty:
		return len(m.properties)
	case screenBank:
		return len(m.catalog.Deposits)
	case screenBusiness:
		return len(m.catalog.Businesses)
	}
	return 0
}

func (m phoneModel) View() string {
	var b strings.Builder
	user := m.app.phone.User()

	b.WriteString(titleStyle.Render(fmt.Sprintf("%d", m.reading.Year)))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  next year in %ds", m.reading.SecondsLeft)))
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(m.reading.Progress / 100))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s  %s\n", user.Username, okStyle.Render(formatRub(user.Balance))))
	b.WriteString(m.tabs())
	b.WriteString("\n\n")

	switch m.screen {
	case screenHome:
		b.WriteString(m.homeView())
	case screenBank:
		b.WriteString(m.bankView())
	case screenMarket:
		b.WriteString(m.marketView())
	case screenRealty:
		b.WriteString(m.realtyView())
	case screenBusiness:
		b.WriteString(m.businessView())
	}

	b.WriteString("\n")
	switch {
	case m.busy:
		b.WriteString(m.spin.View() + " working...")
	case m.status != "" && m.statusErr:
		b.WriteString(errStyle.Render(truncate(m.status, phoneWidth-2)))
	case m.status != "":
		b.WriteString(okStyle.Render(truncate(m.status, phoneWidth-2)))
	default:
		b.WriteString(mutedStyle.Render("tab switch · enter act · r refresh · q quit"))
	}
	return frameStyle.Render(b.String()) + "\n"
}

func (m phoneModel) tabs() string {
	parts := make([]string, len(screenNames))
	for i, name := range screenNames {
		if screen(i) == m.screen {
			parts[i] = activeTab.Render(name)
		} else {
			parts[i] = tabStyle.Render(name)
		}
	}
	return strings.Join(parts, " ")
}

func (m phoneModel) homeView() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Deposits:    %d\n", len(m.deposits)))
	var income int64
	for _, o := range m.owned {
		income += o.MonthlyIncome
	}
	b.WriteString(fmt.Sprintf("Businesses:  %d (+%s/mo)\n", len(m.owned), formatRub(income)))
	b.WriteString(fmt.Sprintf("Market:      %d offers\n", len(m.products)))
	b.WriteString(fmt.Sprintf("Real estate: %d listings\n", len(m.properties)))
	return b.String()
}

func (m phoneModel) bankView() string {
	var b strings.Builder
	b.WriteString(mutedStyle.Render("enter opens the deposit at its minimum") + "\n")
	for i, d := range m.catalog.Deposits {
		line := fmt.Sprintf("%-15s %4.1f%%  from %s", d.Name, d.Rate, formatRub(d.MinAmount))
		b.WriteString(m.row(i, line))
	}
	b.WriteString("\n")
	if len(m.deposits) == 0 {
		b.WriteString(mutedStyle.Render("No deposits yet.") + "\n")
	}
	for i, d := range m.deposits {
		if i == listRows {
			break
		}
		b.WriteString(fmt.Sprintf("  %-15s %s\n", truncate(d.DepositName, 15), formatRub(d.Amount)))
	}
	return b.String()
}

func (m phoneModel) marketView() string {
	if len(m.products) == 0 {
		return mutedStyle.Render("Nothing for sale right now.") + "\n"
	}
	var b strings.Builder
	start, end := window(m.cursor, len(m.products))
	for i := start; i < end; i++ {
		p := m.products[i]
		line := fmt.Sprintf("%-24s %s", truncate(p.Name, 24), formatRub(p.Price))
		if p.SellerID == m.userID {
			line += mutedStyle.Render(" (yours)")
		}
		b.WriteString(m.row(i, line))
	}
	return b.String()
}

func (m phoneModel) realtyView() string {
	var b strings.Builder
	if m.searching {
		b.WriteString("Search: " + m.search.View() + "\n")
	} else if q := m.search.Value(); q != "" {
		b.WriteString(mutedStyle.Render("filter: "+q+" (/ to change)") + "\n")
	} else {
		b.WriteString(mutedStyle.Render("/ to search") + "\n")
	}
	if len(m.properties) == 0 {
		return b.String() + mutedStyle.Render("No properties found.") + "\n"
	}
	start, end := window(m.cursor, len(m.properties))
	for i := start; i < end; i++ {
		p := m.properties[i]
		line := fmt.Sprintf("%-22s %dr %s", truncate(p.Title, 22), p.Rooms, formatRub(p.Price))
		b.WriteString(m.row(i, line))
	}
	return b.String()
}

func (m phoneModel) businessView() string {
	owned := make(map[string]bool, len(m.owned))
	for _, o := range m.owned {
		owned[o.ID] = true
	}
	var b strings.Builder
	for i, t := range m.catalog.Businesses {
		line := fmt.Sprintf("%-14s %s", t.Name, formatRub(t.Cost))
		if owned[t.ID] {
			line += okStyle.Render(" owned")
		}
		b.WriteString(m.row(i, line))
	}
	return b.String()
}

func (m phoneModel) row(i int, line string) string {
	if i == m.cursor {
		return cursorStyle.Render("> ") + line + "\n"
	}
	return "  " + line + "\n"
}

// window keeps the cursor visible in a list longer than listRows.
func window(cursor, n int) (int, int) {
	if n <= listRows {
		return 0, n
	}
	start := cursor - listRows/2
	if start < 0 {
		start = 0
	}
	if start+listRows > n {
		start = n - listRows
	}
	return start, start + listRows
}
