package cashdrawer

import (
	"errors"
	"fmt"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

var ErrInvalidMovement = errors.New("invalid cash movement")

// ValidateMovement checks a ledger entry before it is appended.
func ValidateMovement(m domain.CashMovement) error {
	switch m.Kind {
	case domain.MovementSale, domain.MovementRefund, domain.MovementCashIn, domain.MovementCashOut:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMovement, m.Kind)
	}
	if m.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidMovement)
	}
	return nil
}

// Reconcile computes the expected drawer balance from the opening float and the
// session ledger, then compares it against the counted cash. Entries with an
// unknown kind are ignored.
func Reconcile(openingFloatCents int64, movements []domain.CashMovement, countedCents int64) domain.DrawerSummary {
	s := Expected(openingFloatCents, movements)
	s.CountedCashCents = countedCents
	s.VarianceCents = countedCents - s.ExpectedCashCents
	s.VarianceStatus = Status(s.VarianceCents)
	return s
}

// Expected sums the ledger without a count. Counted, variance and status stay zero.
func Expected(openingFloatCents int64, movements []domain.CashMovement) domain.DrawerSummary {
	s := domain.DrawerSummary{OpeningFloatCents: openingFloatCents}
	for _, m := range movements {
		switch m.Kind {
		case domain.MovementSale:
			s.CashSalesCents += m.AmountCents
		case domain.MovementRefund:
			s.CashRefundsCents += m.AmountCents
		case domain.MovementCashIn:
			s.CashInCents += m.AmountCents
		case domain.MovementCashOut:
			s.CashOutCents += m.AmountCents
		}
	}
	s.ExpectedCashCents = openingFloatCents + s.CashSalesCents - s.CashRefundsCents + s.CashInCents - s.CashOutCents
	return s
}

func Status(varianceCents int64) string {
	switch {
	case varianceCents > 0:
		return domain.VarianceOver
	case varianceCents < 0:
		return domain.VarianceShort
	default:
		return domain.VarianceBalanced
	}
}
