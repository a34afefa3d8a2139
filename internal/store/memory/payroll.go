package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	if strings.TrimSpace(employee.Name) == "" || employee.BaseSalaryCents < 0 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = now
	}
	if employee.JoinedAt.IsZero() {
		employee.JoinedAt = employee.CreatedAt
	}
	employee.UpdatedAt = employee.CreatedAt
	s.employeesByID[employee.ID] = cloneEmployee(employee)
	created := cloneEmployee(employee)
	return &created, nil
}

func (s *Store) UpdateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.employeesByID[employee.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	employee.CreatedAt = existing.CreatedAt
	employee.JoinedAt = existing.JoinedAt
	employee.UpdatedAt = time.Now().UTC()
	s.employeesByID[employee.ID] = cloneEmployee(employee)
	updated := cloneEmployee(employee)
	return &updated, nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employeesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := cloneEmployee(e)
	return &found, nil
}

func (s *Store) ListEmployees(_ context.Context, activeOnly bool) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Employee, 0, len(s.employeesByID))
	for _, e := range s.employeesByID {
		if activeOnly && !e.Active {
			continue
		}
		result = append(result, cloneEmployee(e))
	}
	slices.SortFunc(result, func(a, b domain.Employee) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreateLoan(_ context.Context, loan domain.Loan) (*domain.Loan, error) {
	if loan.PrincipalCents < 1 || loan.InstallmentCents < 1 {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employeesByID[loan.EmployeeID]; !ok {
		return nil, fmt.Errorf("%w: employee %s does not exist", store.ErrInvalidInput, loan.EmployeeID)
	}
	if loan.ID == "" {
		loan.ID = xid.New("loan")
	}
	if loan.IssuedAt.IsZero() {
		loan.IssuedAt = time.Now().UTC()
	}
	loan.BalanceCents = loan.PrincipalCents
	loan.Status = domain.LoanStatusActive
	s.loansByID[loan.ID] = loan
	created := loan
	return &created, nil
}

// ListLoans returns every loan, or one employee's loans when employeeID is set,
// oldest first.
func (s *Store) ListLoans(_ context.Context, employeeID string) ([]domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Loan, 0, len(s.loansByID))
	for _, loan := range s.loansByID {
		if employeeID != "" && loan.EmployeeID != employeeID {
			continue
		}
		result = append(result, loan)
	}
	slices.SortFunc(result, func(a, b domain.Loan) int {
		if c := a.IssuedAt.Compare(b.IssuedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) CreatePayrollRun(_ context.Context, run domain.PayrollRun) (*domain.PayrollRun, error) {
	if run.PeriodEnd.Before(run.PeriodStart) {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkFinalizedOverlapLocked(run); err != nil {
		return nil, err
	}
	if run.ID == "" {
		run.ID = xid.New("payrun")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Status = domain.PayrollRunDraft
	run.FinalizedAt = nil
	run.FinalizedBy = ""
	s.payrollRunsByID[run.ID] = clonePayrollRun(run)
	created := clonePayrollRun(run)
	return &created, nil
}

func (s *Store) GetPayrollRun(_ context.Context, id string) (*domain.PayrollRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.payrollRunsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := clonePayrollRun(run)
	return &found, nil
}

func (s *Store) ListPayrollRuns(_ context.Context, limit int) ([]domain.PayrollRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PayrollRun, 0, len(s.payrollRunsByID))
	for _, run := range s.payrollRunsByID {
		result = append(result, clonePayrollRun(run))
	}
	slices.SortFunc(result, func(a, b domain.PayrollRun) int {
		if c := b.PeriodStart.Compare(a.PeriodStart); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) FinalizePayrollRun(_ context.Context, id string, finalizedBy string, finalizedAt time.Time) (*domain.PayrollRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.payrollRunsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if run.Status != domain.PayrollRunDraft {
		return nil, fmt.Errorf("%w: payroll run is %s", store.ErrConflict, run.Status)
	}
	if err := s.checkFinalizedOverlapLocked(run); err != nil {
		return nil, err
	}
	for _, item := range run.Items {
		if item.NetCents < 0 {
			return nil, fmt.Errorf("%w: net pay for %s is negative", store.ErrInvalidInput, item.EmployeeID)
		}
		for _, ded := range item.Loans {
			loan, ok := s.loansByID[ded.LoanID]
			if !ok || loan.Status != domain.LoanStatusActive {
				return nil, fmt.Errorf("%w: loan %s is no longer active", store.ErrConflict, ded.LoanID)
			}
			if ded.AmountCents > loan.BalanceCents {
				return nil, staleLoanDeduction(ded, loan.BalanceCents)
			}
		}
	}

	for _, item := range run.Items {
		for _, ded := range item.Loans {
			loan := s.loansByID[ded.LoanID]
			loan.BalanceCents -= ded.AmountCents
			if loan.BalanceCents == 0 {
				loan.Status = domain.LoanStatusSettled
			}
			s.loansByID[loan.ID] = loan
		}
	}
	if finalizedAt.IsZero() {
		finalizedAt = time.Now().UTC()
	}
	run.Status = domain.PayrollRunFinalized
	run.FinalizedBy = finalizedBy
	run.FinalizedAt = &finalizedAt
	s.payrollRunsByID[id] = run
	finalized := clonePayrollRun(run)
	return &finalized, nil
}

func (s *Store) checkFinalizedOverlapLocked(run domain.PayrollRun) error {
	for _, other := range s.payrollRunsByID {
		if other.ID == run.ID || other.Status != domain.PayrollRunFinalized {
			continue
		}
		if other.Overlaps(run.PeriodStart, run.PeriodEnd) {
			return fmt.Errorf("%w: period overlaps finalized run %s", store.ErrConflict, other.ID)
		}
	}
	return nil
}

// staleLoanDeduction reports a draft whose loan deduction was computed against
// a balance that a later finalized run has since reduced.
func staleLoanDeduction(ded domain.LoanDeduction, balanceCents int64) error {
	return fmt.Errorf("%w: loan %s deduction %d exceeds balance %d; regenerate the run", store.ErrConflict, ded.LoanID, ded.AmountCents, balanceCents)
}
