package payroll

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

// ErrInvalidInput wraps every rejection from Calculate.
var ErrInvalidInput = errors.New("invalid payroll input")

const (
	MonthlyDivisorDays     = 30
	WorkingDaysDivisorDays = 26
	HoursPerDay            = 8
)

var overtimeMultiplier = decimal.NewFromFloat(1.5)

// DivisorDays returns the proration divisor for a payroll type.
func DivisorDays(payrollType string) (int, error) {
	switch payrollType {
	case domain.PayrollTypeMonthly:
		return MonthlyDivisorDays, nil
	case domain.PayrollTypeWorkingDays:
		return WorkingDaysDivisorDays, nil
	default:
		return 0, fmt.Errorf("%w: unknown payroll type %q", ErrInvalidInput, payrollType)
	}
}

// FallbackOvertimeRateCents is base / divisor / 8 × 1.5, used when the employee
// has no configured overtime rate.
func FallbackOvertimeRateCents(baseSalaryCents int64, divisor int) int64 {
	if divisor <= 0 {
		return 0
	}
	return decimal.NewFromInt(baseSalaryCents).
		Div(decimal.NewFromInt(int64(divisor))).
		Div(decimal.NewFromInt(HoursPerDay)).
		Mul(overtimeMultiplier).
		Round(0).
		IntPart()
}

// NoPayCents prorates the base salary over the divisor for unexcused absences.
func NoPayCents(baseSalaryCents int64, divisor int, absentDays float64) int64 {
	if divisor <= 0 || absentDays <= 0 {
		return 0
	}
	return decimal.NewFromInt(baseSalaryCents).
		Div(decimal.NewFromInt(int64(divisor))).
		Mul(decimal.NewFromFloat(absentDays)).
		Round(0).
		IntPart()
}

// Calculate computes one employee's pay for a period. loans should hold the
// employee's loans; settled or foreign loans are ignored.
func Calculate(emp domain.Employee, in domain.PayrollInput, loans []domain.Loan) (domain.PayrollItem, error) {
	divisor, err := DivisorDays(emp.PayrollType)
	if err != nil {
		return domain.PayrollItem{}, err
	}
	if emp.BaseSalaryCents < 0 || emp.OvertimeRateCents < 0 {
		return domain.PayrollItem{}, fmt.Errorf("%w: employee %s has negative salary values", ErrInvalidInput, emp.ID)
	}
	if in.OvertimeHours < 0 || in.BonusCents < 0 || in.AdHocDeductionsCents < 0 || in.AbsentDays < 0 {
		return domain.PayrollItem{}, fmt.Errorf("%w: negative input for employee %s", ErrInvalidInput, emp.ID)
	}
	if in.AbsentDays > float64(divisor) {
		return domain.PayrollItem{}, fmt.Errorf("%w: absent days %.2f exceed divisor %d", ErrInvalidInput, in.AbsentDays, divisor)
	}

	allowances, err := sumComponents(emp.Allowances)
	if err != nil {
		return domain.PayrollItem{}, err
	}
	recurring, err := sumComponents(emp.RecurringDeductions)
	if err != nil {
		return domain.PayrollItem{}, err
	}

	rate := emp.OvertimeRateCents
	if rate == 0 {
		rate = FallbackOvertimeRateCents(emp.BaseSalaryCents, divisor)
	}
	overtimePay := decimal.NewFromFloat(in.OvertimeHours).
		Mul(decimal.NewFromInt(rate)).
		Round(0).
		IntPart()
	noPay := NoPayCents(emp.BaseSalaryCents, divisor, in.AbsentDays)
	gross := emp.BaseSalaryCents + allowances + overtimePay + in.BonusCents - noPay

	var loanTotal int64
	var applied []domain.LoanDeduction
	for _, loan := range loans {
		if loan.EmployeeID != emp.ID || loan.Status != domain.LoanStatusActive || loan.BalanceCents <= 0 {
			continue
		}
		amount := min(loan.InstallmentCents, loan.BalanceCents)
		if amount <= 0 {
			continue
		}
		loanTotal += amount
		applied = append(applied, domain.LoanDeduction{LoanID: loan.ID, AmountCents: amount})
	}

	deductions := recurring + loanTotal + in.AdHocDeductionsCents
	return domain.PayrollItem{
		EmployeeID:               emp.ID,
		EmployeeName:             emp.Name,
		PayrollType:              emp.PayrollType,
		DivisorDays:              divisor,
		BaseSalaryCents:          emp.BaseSalaryCents,
		AllowancesCents:          allowances,
		OvertimeHours:            in.OvertimeHours,
		OvertimeRateCents:        rate,
		OvertimePayCents:         overtimePay,
		BonusCents:               in.BonusCents,
		AbsentDays:               in.AbsentDays,
		NoPayCents:               noPay,
		GrossCents:               gross,
		RecurringDeductionsCents: recurring,
		LoanDeductionsCents:      loanTotal,
		AdHocDeductionsCents:     in.AdHocDeductionsCents,
		TotalDeductionsCents:     deductions,
		NetCents:                 gross - deductions,
		Loans:                    applied,
	}, nil
}

func sumComponents(items []domain.PayComponent) (int64, error) {
	var total int64
	for _, it := range items {
		if it.AmountCents < 0 {
			return 0, fmt.Errorf("%w: component %q is negative", ErrInvalidInput, it.Name)
		}
		total += it.AmountCents
	}
	return total, nil
}
