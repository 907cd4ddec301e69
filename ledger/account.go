package ledger

import (
	"fmt"

	"github.com/rustyeddy/marginledger/market"
	"github.com/rustyeddy/marginledger/risk"
	"github.com/shopspring/decimal"
)

// Recompute derives the account figures from the balance and the open
// positions:
//
//	marginUsed = Σ margin(p)
//	equity     = balance + Σ unrealizedPnL(p)
//	freeMargin = max(0, equity - marginUsed)
func Recompute(balance decimal.Decimal, positions []Position) Account {
	used := decimal.Zero
	equity := balance
	for _, p := range positions {
		used = used.Add(p.Margin)
		equity = equity.Add(p.UnrealizedPnL)
	}

	free := equity.Sub(used)
	if free.IsNegative() {
		free = decimal.Zero
	}

	return Account{
		Balance:    balance,
		Equity:     equity,
		MarginUsed: used,
		FreeMargin: free,
	}
}

// CheckInvariants returns the first broken accounting identity, or nil.
func (l Ledger) CheckInvariants() error {
	reg := l.registry()
	want := Recompute(l.balance, l.positions)
	got := l.account

	switch {
	case !got.Balance.Equal(want.Balance):
		return fmt.Errorf("balance %s, want %s", got.Balance, want.Balance)
	case !got.Equity.Equal(want.Equity):
		return fmt.Errorf("equity %s != balance + unrealized %s", got.Equity, want.Equity)
	case !got.MarginUsed.Equal(want.MarginUsed):
		return fmt.Errorf("margin used %s != sum of position margin %s", got.MarginUsed, want.MarginUsed)
	case !got.FreeMargin.Equal(want.FreeMargin):
		return fmt.Errorf("free margin %s, want %s", got.FreeMargin, want.FreeMargin)
	case got.FreeMargin.IsNegative():
		return fmt.Errorf("free margin %s is negative", got.FreeMargin)
	}

	for _, p := range l.positions {
		if !p.Lot.IsPositive() || !p.EntryPrice.IsPositive() || !p.Leverage.IsPositive() {
			return fmt.Errorf("position %s: lot %s entry %s leverage %s must be positive",
				p.ID, p.Lot, p.EntryPrice, p.Leverage)
		}
		m := risk.RequiredMargin(reg.Lookup(p.Symbol), p.Lot, p.EntryPrice, p.Leverage)
		if !m.Equal(p.Margin) {
			return fmt.Errorf("position %s: margin %s, want %s", p.ID, p.Margin, m)
		}
	}
	return nil
}

func (l Ledger) registry() *market.Registry {
	if l.opts.Registry == nil {
		return market.Default()
	}
	return l.opts.Registry
}
