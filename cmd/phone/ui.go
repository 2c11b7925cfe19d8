package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"banksim/internal/bank"
	"banksim/internal/gameclock"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Fprintln(os.Stderr, msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderUser(u bank.User, r gameclock.Reading) {
	accent.Printf("\n== %s ==\n", u.Username)
	fmt.Printf("User ID:  %d\n", u.ID)
	fmt.Printf("Balance:  %s\n", formatRub(u.Balance))
	fmt.Printf("Year:     %d (%.1f%%, next in %ds)\n", r.Year, r.Progress, r.SecondsLeft)
	fmt.Println()
}

func renderClock(r gameclock.Reading) {
	accent.Printf("\n== YEAR %d ==\n", r.Year)
	fmt.Printf("Progress: %s %.1f%%\n", progressBar(r.Progress, 30), r.Progress)
	fmt.Printf("Next year in %ds\n", r.SecondsLeft)
	fmt.Println()
}

func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func renderBankTemplates(c bank.Catalog) {
	accent.Println("\n== DEPOSITS ==")
	fmt.Printf("%-4s %-18s %8s %14s %-10s\n", "ID", "NAME", "RATE", "MIN", "TERM")
	for _, d := range c.Deposits {
		fmt.Printf("%-4s %-18s %7.1f%% %14s %-10s\n", d.ID, truncate(d.Name, 18), d.Rate, formatRub(d.MinAmount), d.Term())
	}
	fmt.Println()
	accent.Println("== CREDITS ==")
	fmt.Printf("%-4s %-18s %8s %14s %-10s\n", "ID", "NAME", "RATE", "MAX", "TERM")
	for _, cr := range c.Credits {
		fmt.Printf("%-4s %-18s %7.1f%% %14s %-10s\n", cr.ID, truncate(cr.Name, 18), cr.Rate, formatRub(cr.MaxAmount), cr.Term())
	}
	fmt.Println()
}

func renderDeposits(items []bank.Deposit) {
	accent.Println("\n== MY DEPOSITS ==")
	if len(items) == 0 {
		printInfo("No deposits yet.")
		return
	}
	fmt.Printf("%-4s %-18s %14s %8s %8s %-12s\n", "ID", "NAME", "AMOUNT", "RATE", "TERM", "EXPIRES")
	for _, d := range items {
		fmt.Printf("%-4d %-18s %14s %7.1f%% %7dm %-12s\n",
			d.ID,
			truncate(d.DepositName, 18),
			formatRub(d.Amount),
			d.Rate,
			d.TermMonths,
			d.ExpiresAt.Local().Format("2006-01-02"),
		)
	}
	fmt.Println()
}

func renderBusinesses(catalog []bank.BusinessTemplate, owned []bank.BusinessTemplate) {
	ownedIDs := make(map[string]struct{}, len(owned))
	var income int64
	for _, b := range owned {
		ownedIDs[b.ID] = struct{}{}
		income += b.MonthlyIncome
	}
	accent.Println("\n== BUSINESSES ==")
	fmt.Printf("%-4s %-16s %14s %14s %-6s\n", "ID", "NAME", "COST", "INCOME/MO", "OWNED")
	for _, b := range catalog {
		mark := ""
		if _, ok := ownedIDs[b.ID]; ok {
			mark = success.Sprint("yes")
		}
		fmt.Printf("%-4s %-16s %14s %14s %-6s\n", b.ID, truncate(b.Name, 16), formatRub(b.Cost), formatRub(b.MonthlyIncome), mark)
	}
	fmt.Println()
	if len(owned) > 0 {
		printInfo(fmt.Sprintf("Monthly income: %s", formatRub(income)))
	}
}

func renderProducts(items []bank.Product) {
	accent.Println("\n== MARKETPLACE ==")
	if len(items) == 0 {
		printInfo("Nothing for sale right now.")
		return
	}
	fmt.Printf("%-5s %-24s %14s %-18s %-30s\n", "ID", "NAME", "PRICE", "SELLER", "DESCRIPTION")
	for _, p := range items {
		fmt.Printf("%-5d %-24s %14s %-18s %-30s\n",
			p.ID,
			truncate(p.Name, 24),
			formatRub(p.Price),
			truncate(p.SellerName, 18),
			truncate(p.Description, 30),
		)
	}
	fmt.Println()
}

func renderProperties(items []bank.Property) {
	accent.Println("\n== REAL ESTATE ==")
	if len(items) == 0 {
		printInfo("No properties found.")
		return
	}
	fmt.Printf("%-5s %-24s %16s %-22s %5s %8s\n", "ID", "TITLE", "PRICE", "ADDRESS", "ROOMS", "AREA")
	for _, p := range items {
		fmt.Printf("%-5d %-24s %16s %-22s %5d %7.1fm\n",
			p.ID,
			truncate(p.Title, 24),
			formatRub(p.Price),
			truncate(p.Address, 22),
			p.Rooms,
			p.Area,
		)
	}
	fmt.Println()
}

func renderTransactions(items []bank.Transaction, userID int64) {
	accent.Println("\n== RECENT OPERATIONS ==")
	if len(items) == 0 {
		printInfo("No operations yet.")
		return
	}
	fmt.Printf("%-17s %-22s %-26s %16s\n", "TIME", "TYPE", "DESCRIPTION", "AMOUNT")
	for _, t := range items {
		amount := -t.Amount
		if t.FromUserID != userID {
			amount = t.Amount
		}
		fmt.Printf("%-17s %-22s %-26s %16s\n",
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
			t.Type,
			truncate(t.Description, 26),
			colorizeRub(amount),
		)
	}
	fmt.Println()
}

func colorizeRub(v int64) string {
	text := formatRub(v)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatRub(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + comma(v) + " RUB"
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(' ')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
