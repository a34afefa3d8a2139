package domain

import "time"

const (
	PayrollTypeMonthly     = "monthly"
	PayrollTypeWorkingDays = "working_days"
)

const (
	LoanStatusActive  = "active"
	LoanStatusSettled = "settled"
)

const (
	PayrollRunDraft     = "draft"
	PayrollRunFinalized = "finalized"
)

// PayComponent is a named allowance or recurring deduction on an employee's salary.
type PayComponent struct {
	Name        string `json:"name" validate:"required,max=80"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
}

type Employee struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Position            string         `json:"position"`
	PayrollType         string         `json:"payroll_type"`
	BaseSalaryCents     int64          `json:"base_salary_cents"`
	Allowances          []PayComponent `json:"allowances"`
	RecurringDeductions []PayComponent `json:"recurring_deductions"`
	OvertimeRateCents   int64          `json:"overtime_rate_cents"`
	Active              bool           `json:"active"`
	JoinedAt            time.Time      `json:"joined_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

type EmployeeCreateRequest struct {
	Name                string         `json:"name" validate:"required,max=120"`
	Position            string         `json:"position" validate:"max=80"`
	PayrollType         string         `json:"payroll_type" validate:"required,oneof=monthly working_days"`
	BaseSalaryCents     int64          `json:"base_salary_cents" validate:"gte=0"`
	Allowances          []PayComponent `json:"allowances" validate:"dive"`
	RecurringDeductions []PayComponent `json:"recurring_deductions" validate:"dive"`
	OvertimeRateCents   int64          `json:"overtime_rate_cents" validate:"gte=0"`
	JoinedAt            string         `json:"joined_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type EmployeeUpdateRequest struct {
	Name                *string         `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Position            *string         `json:"position,omitempty" validate:"omitempty,max=80"`
	PayrollType         *string         `json:"payroll_type,omitempty" validate:"omitempty,oneof=monthly working_days"`
	BaseSalaryCents     *int64          `json:"base_salary_cents,omitempty" validate:"omitempty,gte=0"`
	Allowances          *[]PayComponent `json:"allowances,omitempty" validate:"omitempty,dive"`
	RecurringDeductions *[]PayComponent `json:"recurring_deductions,omitempty" validate:"omitempty,dive"`
	OvertimeRateCents   *int64          `json:"overtime_rate_cents,omitempty" validate:"omitempty,gte=0"`
	Active              *bool           `json:"active,omitempty"`
}

type Loan struct {
	ID               string    `json:"id"`
	EmployeeID       string    `json:"employee_id"`
	PrincipalCents   int64     `json:"principal_cents"`
	InstallmentCents int64     `json:"installment_cents"`
	BalanceCents     int64     `json:"balance_cents"`
	Status           string    `json:"status"`
	Note             string    `json:"note,omitempty"`
	IssuedBy         string    `json:"issued_by"`
	IssuedAt         time.Time `json:"issued_at"`
}

type LoanCreateRequest struct {
	EmployeeID       string `json:"employee_id" validate:"required"`
	PrincipalCents   int64  `json:"principal_cents" validate:"gte=1"`
	InstallmentCents int64  `json:"installment_cents" validate:"gte=1,ltefield=PrincipalCents"`
	Note             string `json:"note,omitempty" validate:"max=240"`
}

// PayrollInput carries the per-period variables for one employee.
type PayrollInput struct {
	EmployeeID           string  `json:"employee_id" validate:"required"`
	OvertimeHours        float64 `json:"overtime_hours" validate:"gte=0,lte=400"`
	BonusCents           int64   `json:"bonus_cents" validate:"gte=0"`
	AbsentDays           float64 `json:"absent_days" validate:"gte=0"`
	AdHocDeductionsCents int64   `json:"ad_hoc_deductions_cents" validate:"gte=0"`
}

type PayrollRunRequest struct {
	PeriodStart string         `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string         `json:"period_end" validate:"required,datetime=2006-01-02"`
	Inputs      []PayrollInput `json:"inputs" validate:"dive"`
}

type LoanDeduction struct {
	LoanID      string `json:"loan_id"`
	AmountCents int64  `json:"amount_cents"`
}

type PayrollItem struct {
	EmployeeID               string          `json:"employee_id"`
	EmployeeName             string          `json:"employee_name"`
	PayrollType              string          `json:"payroll_type"`
	DivisorDays              int             `json:"divisor_days"`
	BaseSalaryCents          int64           `json:"base_salary_cents"`
	AllowancesCents          int64           `json:"allowances_cents"`
	OvertimeHours            float64         `json:"overtime_hours"`
	OvertimeRateCents        int64           `json:"overtime_rate_cents"`
	OvertimePayCents         int64           `json:"overtime_pay_cents"`
	BonusCents               int64           `json:"bonus_cents"`
	AbsentDays               float64         `json:"absent_days"`
	NoPayCents               int64           `json:"no_pay_cents"`
	GrossCents               int64           `json:"gross_cents"`
	RecurringDeductionsCents int64           `json:"recurring_deductions_cents"`
	LoanDeductionsCents      int64           `json:"loan_deductions_cents"`
	AdHocDeductionsCents     int64           `json:"ad_hoc_deductions_cents"`
	TotalDeductionsCents     int64           `json:"total_deductions_cents"`
	NetCents                 int64           `json:"net_cents"`
	Loans                    []LoanDeduction `json:"loans,omitempty"`
}

type PayrollRun struct {
	ID                   string        `json:"id"`
	PeriodStart          time.Time     `json:"period_start"`
	PeriodEnd            time.Time     `json:"period_end"`
	Status               string        `json:"status"`
	Items                []PayrollItem `json:"items"`
	TotalGrossCents      int64         `json:"total_gross_cents"`
	TotalDeductionsCents int64         `json:"total_deductions_cents"`
	TotalNetCents        int64         `json:"total_net_cents"`
	CreatedBy            string        `json:"created_by"`
	CreatedAt            time.Time     `json:"created_at"`
	FinalizedBy          string        `json:"finalized_by,omitempty"`
	FinalizedAt          *time.Time    `json:"finalized_at,omitempty"`
}

// Overlaps reports whether the run's inclusive period intersects [start, end].
func (r PayrollRun) Overlaps(start, end time.Time) bool {
	return !r.PeriodEnd.Before(start) && !end.Before(r.PeriodStart)
}
