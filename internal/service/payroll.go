package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lakshan9910/studio-sub000/internal/document"
	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/payroll"
	"github.com/lakshan9910/studio-sub000/internal/store"
)

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Employee{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Position = strings.TrimSpace(req.Position)
	req.PayrollType = strings.ToLower(strings.TrimSpace(req.PayrollType))
	if err := s.check(req); err != nil {
		return domain.Employee{}, err
	}

	employee := domain.Employee{
		Name:                req.Name,
		Position:            req.Position,
		PayrollType:         req.PayrollType,
		BaseSalaryCents:     req.BaseSalaryCents,
		Allowances:          trimComponents(req.Allowances),
		RecurringDeductions: trimComponents(req.RecurringDeductions),
		OvertimeRateCents:   req.OvertimeRateCents,
		Active:              true,
		CreatedAt:           s.now(),
	}
	if req.JoinedAt != "" {
		joined, err := parseDate("joined_at", req.JoinedAt)
		if err != nil {
			return domain.Employee{}, err
		}
		employee.JoinedAt = joined
	}

	created, err := s.repo.CreateEmployee(ctx, employee)
	if err != nil {
		return domain.Employee{}, err
	}
	s.logAudit(ctx, "employee_create", "employee", created.ID, fmt.Sprintf("name=%s,type=%s,base=%d", created.Name, created.PayrollType, created.BaseSalaryCents))
	return *created, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, req domain.EmployeeUpdateRequest) (domain.Employee, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Employee{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Employee{}, err
	}
	existing, err := s.repo.GetEmployee(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Employee{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Employee{}, invalid("name", "required")
		}
		updated.Name = name
	}
	if req.Position != nil {
		updated.Position = strings.TrimSpace(*req.Position)
	}
	if req.PayrollType != nil {
		updated.PayrollType = strings.ToLower(strings.TrimSpace(*req.PayrollType))
	}
	if req.BaseSalaryCents != nil {
		updated.BaseSalaryCents = *req.BaseSalaryCents
	}
	if req.Allowances != nil {
		updated.Allowances = trimComponents(*req.Allowances)
	}
	if req.RecurringDeductions != nil {
		updated.RecurringDeductions = trimComponents(*req.RecurringDeductions)
	}
	if req.OvertimeRateCents != nil {
		updated.OvertimeRateCents = *req.OvertimeRateCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateEmployee(ctx, updated)
	if err != nil {
		return domain.Employee{}, err
	}
	s.logAudit(ctx, "employee_update", "employee", saved.ID, fmt.Sprintf("type=%s,base=%d,active=%t", saved.PayrollType, saved.BaseSalaryCents, saved.Active))
	return *saved, nil
}

func (s *Service) GetEmployee(ctx context.Context, id string) (domain.Employee, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Employee{}, err
	}
	employee, err := s.repo.GetEmployee(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Employee{}, err
	}
	return *employee, nil
}

func (s *Service) ListEmployees(ctx context.Context, activeOnly bool) ([]domain.Employee, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListEmployees(ctx, activeOnly)
}

func (s *Service) IssueLoan(ctx context.Context, req domain.LoanCreateRequest) (domain.Loan, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Loan{}, err
	}
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.Note = strings.TrimSpace(req.Note)
	if err := s.check(req); err != nil {
		return domain.Loan{}, err
	}
	employee, err := s.repo.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Loan{}, invalid("employee_id", "exists")
		}
		return domain.Loan{}, err
	}
	if !employee.Active {
		return domain.Loan{}, fmt.Errorf("%w: employee %s is inactive", store.ErrConflict, employee.ID)
	}

	created, err := s.repo.CreateLoan(ctx, domain.Loan{
		EmployeeID:       employee.ID,
		PrincipalCents:   req.PrincipalCents,
		InstallmentCents: req.InstallmentCents,
		Note:             req.Note,
		IssuedBy:         actor.Username,
		IssuedAt:         s.now(),
	})
	if err != nil {
		return domain.Loan{}, err
	}
	s.logAudit(ctx, "loan_issue", "loan", created.ID, fmt.Sprintf("employee=%s,principal=%d,installment=%d", created.EmployeeID, created.PrincipalCents, created.InstallmentCents))
	return *created, nil
}

func (s *Service) ListLoans(ctx context.Context, employeeID string) ([]domain.Loan, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListLoans(ctx, strings.TrimSpace(employeeID))
}

// GeneratePayrollRun builds a draft run with one item per active employee who
// joined on or before the period end. Employees without an input entry get a
// zero-variable item.
func (s *Service) GeneratePayrollRun(ctx context.Context, req domain.PayrollRunRequest) (domain.PayrollRun, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.PayrollRun{}, err
	}
	if err := s.check(req); err != nil {
		return domain.PayrollRun{}, err
	}
	start, err := parseDate("period_start", req.PeriodStart)
	if err != nil {
		return domain.PayrollRun{}, err
	}
	end, err := parseDate("period_end", req.PeriodEnd)
	if err != nil {
		return domain.PayrollRun{}, err
	}
	if end.Before(start) {
		return domain.PayrollRun{}, invalid("period_end", "gtefield")
	}

	employees, err := s.repo.ListEmployees(ctx, true)
	if err != nil {
		return domain.PayrollRun{}, err
	}
	byID := make(map[string]domain.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}

	inputs := make(map[string]domain.PayrollInput, len(req.Inputs))
	for _, in := range req.Inputs {
		in.EmployeeID = strings.TrimSpace(in.EmployeeID)
		if _, ok := byID[in.EmployeeID]; !ok {
			return domain.PayrollRun{}, fmt.Errorf("%w: employee %s is unknown or inactive", store.ErrInvalidInput, in.EmployeeID)
		}
		if _, dup := inputs[in.EmployeeID]; dup {
			return domain.PayrollRun{}, fmt.Errorf("%w: employee %s has more than one input", store.ErrInvalidInput, in.EmployeeID)
		}
		inputs[in.EmployeeID] = in
	}

	loans, err := s.repo.ListLoans(ctx, "")
	if err != nil {
		return domain.PayrollRun{}, err
	}
	loansByEmployee := make(map[string][]domain.Loan)
	for _, loan := range loans {
		loansByEmployee[loan.EmployeeID] = append(loansByEmployee[loan.EmployeeID], loan)
	}

	run := domain.PayrollRun{
		PeriodStart: start,
		PeriodEnd:   end,
		Items:       make([]domain.PayrollItem, 0, len(employees)),
		CreatedBy:   actor.Username,
		CreatedAt:   s.now(),
	}
	for _, emp := range employees {
		if !emp.JoinedAt.IsZero() && emp.JoinedAt.After(end) {
			continue
		}
		in, ok := inputs[emp.ID]
		if !ok {
			in = domain.PayrollInput{EmployeeID: emp.ID}
		}
		item, err := payroll.Calculate(emp, in, loansByEmployee[emp.ID])
		if err != nil {
			return domain.PayrollRun{}, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
		}
		run.Items = append(run.Items, item)
		run.TotalGrossCents += item.GrossCents
		run.TotalDeductionsCents += item.TotalDeductionsCents
		run.TotalNetCents += item.NetCents
	}
	if len(run.Items) == 0 {
		return domain.PayrollRun{}, fmt.Errorf("%w: no active employees in period", store.ErrInvalidInput)
	}

	created, err := s.repo.CreatePayrollRun(ctx, run)
	if err != nil {
		return domain.PayrollRun{}, err
	}
	s.logAudit(ctx, "payroll_generate", "payroll_run", created.ID, fmt.Sprintf("period=%s..%s,items=%d,net=%d", req.PeriodStart, req.PeriodEnd, len(created.Items), created.TotalNetCents))
	return *created, nil
}

func (s *Service) GetPayrollRun(ctx context.Context, id string) (domain.PayrollRun, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PayrollRun{}, err
	}
	run, err := s.repo.GetPayrollRun(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.PayrollRun{}, err
	}
	return *run, nil
}

func (s *Service) ListPayrollRuns(ctx context.Context, limit int) ([]domain.PayrollRun, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListPayrollRuns(ctx, limit)
}

func (s *Service) FinalizePayrollRun(ctx context.Context, id string) (domain.PayrollRun, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.PayrollRun{}, err
	}
	finalized, err := s.repo.FinalizePayrollRun(ctx, strings.TrimSpace(id), actor.Username, s.now())
	if err != nil {
		return domain.PayrollRun{}, err
	}
	s.metrics.PayrollRunFinalized()
	s.logAudit(ctx, "payroll_finalize", "payroll_run", finalized.ID, fmt.Sprintf("items=%d,net=%d", len(finalized.Items), finalized.TotalNetCents))
	return *finalized, nil
}

func (s *Service) PayrollRunXLSX(ctx context.Context, id string) ([]byte, error) {
	run, err := s.GetPayrollRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return document.PayrollRunXLSX(run)
}

func (s *Service) PayslipPDF(ctx context.Context, runID string, employeeID string) ([]byte, error) {
	run, err := s.GetPayrollRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	employeeID = strings.TrimSpace(employeeID)
	for _, item := range run.Items {
		if item.EmployeeID != employeeID {
			continue
		}
		settings, err := s.repo.GetSettings(ctx)
		if err != nil {
			return nil, err
		}
		return document.PayslipPDF(run, item, settings)
	}
	return nil, fmt.Errorf("%w: employee %s is not on run %s", store.ErrNotFound, employeeID, run.ID)
}

func trimComponents(items []domain.PayComponent) []domain.PayComponent {
	result := make([]domain.PayComponent, 0, len(items))
	for _, it := range items {
		result = append(result, domain.PayComponent{Name: strings.TrimSpace(it.Name), AmountCents: it.AmountCents})
	}
	return result
}
