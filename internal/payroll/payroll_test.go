package payroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

func monthlyEmployee() domain.Employee {
	return domain.Employee{
		ID:              "emp-1",
		Name:            "Nadia",
		PayrollType:     domain.PayrollTypeMonthly,
		BaseSalaryCents: 300000,
		Allowances: []domain.PayComponent{
			{Name: "transport", AmountCents: 20000},
			{Name: "meals", AmountCents: 15000},
		},
		RecurringDeductions: []domain.PayComponent{{Name: "pension", AmountCents: 24000}},
		OvertimeRateCents:   2500,
		Active:              true,
	}
}

func TestDivisorDays(t *testing.T) {
	d, err := DivisorDays(domain.PayrollTypeMonthly)
	require.NoError(t, err)
	assert.Equal(t, 30, d)

	d, err = DivisorDays(domain.PayrollTypeWorkingDays)
	require.NoError(t, err)
	assert.Equal(t, 26, d)

	_, err = DivisorDays("weekly")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculateFullComponents(t *testing.T) {
	emp := monthlyEmployee()
	loans := []domain.Loan{
		{ID: "loan-1", EmployeeID: "emp-1", InstallmentCents: 10000, BalanceCents: 50000, Status: domain.LoanStatusActive},
		{ID: "loan-2", EmployeeID: "emp-1", InstallmentCents: 10000, BalanceCents: 4000, Status: domain.LoanStatusActive},
		{ID: "loan-3", EmployeeID: "emp-1", InstallmentCents: 10000, BalanceCents: 0, Status: domain.LoanStatusSettled},
		{ID: "loan-4", EmployeeID: "emp-2", InstallmentCents: 10000, BalanceCents: 90000, Status: domain.LoanStatusActive},
	}
	item, err := Calculate(emp, domain.PayrollInput{
		EmployeeID:           "emp-1",
		OvertimeHours:        4,
		BonusCents:           5000,
		AbsentDays:           3,
		AdHocDeductionsCents: 1000,
	}, loans)
	require.NoError(t, err)

	assert.Equal(t, 30, item.DivisorDays)
	assert.Equal(t, int64(35000), item.AllowancesCents)
	assert.Equal(t, int64(10000), item.OvertimePayCents)
	assert.Equal(t, int64(30000), item.NoPayCents)
	// 300000 + 35000 + 10000 + 5000 - 30000
	assert.Equal(t, int64(320000), item.GrossCents)
	assert.Equal(t, int64(14000), item.LoanDeductionsCents)
	assert.Equal(t, int64(24000+14000+1000), item.TotalDeductionsCents)
	assert.Equal(t, item.GrossCents-item.TotalDeductionsCents, item.NetCents)
	require.Len(t, item.Loans, 2)
	assert.Equal(t, domain.LoanDeduction{LoanID: "loan-2", AmountCents: 4000}, item.Loans[1])
}

func TestCalculateWorkingDaysFallbackOvertime(t *testing.T) {
	emp := domain.Employee{
		ID:              "emp-9",
		PayrollType:     domain.PayrollTypeWorkingDays,
		BaseSalaryCents: 520000,
	}
	item, err := Calculate(emp, domain.PayrollInput{OvertimeHours: 2.5, AbsentDays: 2}, nil)
	require.NoError(t, err)

	// 520000 / 26 / 8 * 1.5
	assert.Equal(t, int64(3750), item.OvertimeRateCents)
	assert.Equal(t, int64(9375), item.OvertimePayCents)
	assert.Equal(t, int64(40000), item.NoPayCents)
	assert.Equal(t, int64(520000+9375-40000), item.GrossCents)
	assert.Equal(t, item.GrossCents, item.NetCents)
}

func TestCalculateNoPayRounds(t *testing.T) {
	emp := domain.Employee{ID: "e", PayrollType: domain.PayrollTypeMonthly, BaseSalaryCents: 100000, OvertimeRateCents: 1}
	item, err := Calculate(emp, domain.PayrollInput{AbsentDays: 1}, nil)
	require.NoError(t, err)
	// 3333.33
	assert.Equal(t, int64(3333), item.NoPayCents)

	item, err = Calculate(emp, domain.PayrollInput{AbsentDays: 0.5}, nil)
	require.NoError(t, err)
	// 1666.67
	assert.Equal(t, int64(1667), item.NoPayCents)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	emp := monthlyEmployee()
	cases := map[string]domain.PayrollInput{
		"negative overtime":  {OvertimeHours: -1},
		"negative bonus":     {BonusCents: -1},
		"negative absence":   {AbsentDays: -1},
		"absence over month": {AbsentDays: 31},
		"negative ad hoc":    {AdHocDeductionsCents: -5},
	}
	for name, in := range cases {
		_, err := Calculate(emp, in, nil)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}

	emp.Allowances = []domain.PayComponent{{Name: "bad", AmountCents: -1}}
	_, err := Calculate(emp, domain.PayrollInput{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	emp = monthlyEmployee()
	emp.PayrollType = "hourly"
	_, err = Calculate(emp, domain.PayrollInput{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculateNetCanGoNegative(t *testing.T) {
	emp := domain.Employee{ID: "e", PayrollType: domain.PayrollTypeWorkingDays, BaseSalaryCents: 26000, OvertimeRateCents: 1}
	item, err := Calculate(emp, domain.PayrollInput{AbsentDays: 26, AdHocDeductionsCents: 500}, nil)
	require.NoError(t, err)
	assert.Zero(t, item.GrossCents)
	assert.Equal(t, int64(-500), item.NetCents)
}
