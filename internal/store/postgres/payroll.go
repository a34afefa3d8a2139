package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

const employeeColumns = `id, name, position, payroll_type, base_salary_cents, allowances, recurring_deductions,
	overtime_rate_cents, active, joined_at, created_at, updated_at`

func scanEmployee(row interface{ Scan(...any) error }) (domain.Employee, error) {
	var e domain.Employee
	var allowances, deductions []byte
	err := row.Scan(&e.ID, &e.Name, &e.Position, &e.PayrollType, &e.BaseSalaryCents, &allowances, &deductions,
		&e.OvertimeRateCents, &e.Active, &e.JoinedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.Employee{}, err
	}
	if err := json.Unmarshal(allowances, &e.Allowances); err != nil {
		return domain.Employee{}, fmt.Errorf("decode allowances: %w", err)
	}
	if err := json.Unmarshal(deductions, &e.RecurringDeductions); err != nil {
		return domain.Employee{}, fmt.Errorf("decode deductions: %w", err)
	}
	return e, nil
}

func componentsJSON(items []domain.PayComponent) (string, error) {
	if items == nil {
		items = []domain.PayComponent{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.Name == "" || employee.BaseSalaryCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	now := time.Now().UTC()
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = now
	}
	if employee.JoinedAt.IsZero() {
		employee.JoinedAt = dateOnly(employee.CreatedAt)
	}
	employee.UpdatedAt = employee.CreatedAt

	allowances, err := componentsJSON(employee.Allowances)
	if err != nil {
		return nil, err
	}
	deductions, err := componentsJSON(employee.RecurringDeductions)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, position, payroll_type, base_salary_cents, allowances, recurring_deductions,
			overtime_rate_cents, active, joined_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7::jsonb,$8,$9,$10,$11,$12)
	`, employee.ID, employee.Name, employee.Position, employee.PayrollType, employee.BaseSalaryCents, allowances, deductions,
		employee.OvertimeRateCents, employee.Active, dateOnly(employee.JoinedAt), employee.CreatedAt, employee.UpdatedAt)
	if err != nil {
		return nil, mapWriteErr(err, "employee")
	}
	created := employee
	return &created, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	allowances, err := componentsJSON(employee.Allowances)
	if err != nil {
		return nil, err
	}
	deductions, err := componentsJSON(employee.RecurringDeductions)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees
		SET name = $2, position = $3, payroll_type = $4, base_salary_cents = $5, allowances = $6::jsonb,
			recurring_deductions = $7::jsonb, overtime_rate_cents = $8, active = $9, updated_at = now()
		WHERE id = $1
	`, employee.ID, employee.Name, employee.Position, employee.PayrollType, employee.BaseSalaryCents, allowances, deductions,
		employee.OvertimeRateCents, employee.Active)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetEmployee(ctx, employee.ID)
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, activeOnly bool) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE ($1 = false OR active = true)
		ORDER BY name, id
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Employee, 0, 16)
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *Store) CreateLoan(ctx context.Context, loan domain.Loan) (*domain.Loan, error) {
	if loan.PrincipalCents < 1 || loan.InstallmentCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if loan.ID == "" {
		loan.ID = xid.New("loan")
	}
	if loan.IssuedAt.IsZero() {
		loan.IssuedAt = time.Now().UTC()
	}
	loan.BalanceCents = loan.PrincipalCents
	loan.Status = domain.LoanStatusActive
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loans (id, employee_id, principal_cents, installment_cents, balance_cents, status, note, issued_by, issued_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, loan.ID, loan.EmployeeID, loan.PrincipalCents, loan.InstallmentCents, loan.BalanceCents, loan.Status, loan.Note, loan.IssuedBy, loan.IssuedAt)
	if err != nil {
		return nil, mapWriteErr(err, "employee "+loan.EmployeeID)
	}
	created := loan
	return &created, nil
}

func (s *Store) ListLoans(ctx context.Context, employeeID string) ([]domain.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, principal_cents, installment_cents, balance_cents, status, note, issued_by, issued_at
		FROM loans
		WHERE ($1 = '' OR employee_id = $1)
		ORDER BY issued_at, id
	`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Loan, 0, 16)
	for rows.Next() {
		var l domain.Loan
		if err := rows.Scan(&l.ID, &l.EmployeeID, &l.PrincipalCents, &l.InstallmentCents, &l.BalanceCents, &l.Status, &l.Note, &l.IssuedBy, &l.IssuedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *Store) CreatePayrollRun(ctx context.Context, run domain.PayrollRun) (*domain.PayrollRun, error) {
	if run.PeriodEnd.Before(run.PeriodStart) {
		return nil, store.ErrInvalidInput
	}
	if run.ID == "" {
		run.ID = xid.New("payrun")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Status = domain.PayrollRunDraft

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkFinalizedOverlap(ctx, tx, run); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payroll_runs (id, period_start, period_end, status, total_gross_cents, total_deductions_cents,
				total_net_cents, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, run.ID, dateOnly(run.PeriodStart), dateOnly(run.PeriodEnd), run.Status, run.TotalGrossCents, run.TotalDeductionsCents,
			run.TotalNetCents, run.CreatedBy, run.CreatedAt)
		if err != nil {
			return err
		}
		for _, item := range run.Items {
			detail, err := json.Marshal(item)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO payroll_items (run_id, employee_id, net_cents, detail) VALUES ($1,$2,$3,$4::jsonb)
			`, run.ID, item.EmployeeID, item.NetCents, string(detail)); err != nil {
				return mapWriteErr(err, "employee "+item.EmployeeID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	created := run
	return &created, nil
}

func checkFinalizedOverlap(ctx context.Context, tx *sql.Tx, run domain.PayrollRun) error {
	var otherID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM payroll_runs
		WHERE status = 'finalized' AND id <> $1 AND period_start <= $3 AND period_end >= $2
		LIMIT 1
	`, run.ID, dateOnly(run.PeriodStart), dateOnly(run.PeriodEnd)).Scan(&otherID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: period overlaps finalized run %s", store.ErrConflict, otherID)
}

const payrollRunColumns = `id, period_start, period_end, status, total_gross_cents, total_deductions_cents,
	total_net_cents, created_by, created_at, finalized_by, finalized_at`

func scanPayrollRun(row interface{ Scan(...any) error }) (domain.PayrollRun, error) {
	var run domain.PayrollRun
	var finalizedAt sql.NullTime
	err := row.Scan(&run.ID, &run.PeriodStart, &run.PeriodEnd, &run.Status, &run.TotalGrossCents, &run.TotalDeductionsCents,
		&run.TotalNetCents, &run.CreatedBy, &run.CreatedAt, &run.FinalizedBy, &finalizedAt)
	if err != nil {
		return domain.PayrollRun{}, err
	}
	if finalizedAt.Valid {
		at := finalizedAt.Time
		run.FinalizedAt = &at
	}
	return run, nil
}

func (s *Store) GetPayrollRun(ctx context.Context, id string) (*domain.PayrollRun, error) {
	return s.getPayrollRun(ctx, s.db, id, false)
}

func (s *Store) getPayrollRun(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.PayrollRun, error) {
	query := `SELECT ` + payrollRunColumns + ` FROM payroll_runs WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	run, err := scanPayrollRun(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	runs := []domain.PayrollRun{run}
	if err := attachPayrollItems(ctx, q, runs); err != nil {
		return nil, err
	}
	return &runs[0], nil
}

func attachPayrollItems(ctx context.Context, q queryer, runs []domain.PayrollRun) error {
	if len(runs) == 0 {
		return nil
	}
	ids := make([]string, len(runs))
	index := make(map[string]int, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
		index[r.ID] = i
		runs[i].Items = []domain.PayrollItem{}
	}
	rows, err := q.QueryContext(ctx, `
		SELECT run_id, detail FROM payroll_items WHERE run_id = ANY($1) ORDER BY run_id, employee_id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var runID string
		var detail []byte
		if err := rows.Scan(&runID, &detail); err != nil {
			return err
		}
		var item domain.PayrollItem
		if err := json.Unmarshal(detail, &item); err != nil {
			return fmt.Errorf("decode payroll item: %w", err)
		}
		i := index[runID]
		runs[i].Items = append(runs[i].Items, item)
	}
	return rows.Err()
}

func (s *Store) ListPayrollRuns(ctx context.Context, limit int) ([]domain.PayrollRun, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+payrollRunColumns+`
		FROM payroll_runs
		ORDER BY period_start DESC, created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]domain.PayrollRun, 0, limit)
	for rows.Next() {
		run, err := scanPayrollRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachPayrollItems(ctx, s.db, runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) FinalizePayrollRun(ctx context.Context, id string, finalizedBy string, finalizedAt time.Time) (*domain.PayrollRun, error) {
	if finalizedAt.IsZero() {
		finalizedAt = time.Now().UTC()
	}
	var finalized *domain.PayrollRun
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		run, err := s.getPayrollRun(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if run.Status != domain.PayrollRunDraft {
			return fmt.Errorf("%w: payroll run is %s", store.ErrConflict, run.Status)
		}
		if err := checkFinalizedOverlap(ctx, tx, *run); err != nil {
			return err
		}
		for _, item := range run.Items {
			if item.NetCents < 0 {
				return fmt.Errorf("%w: net pay for %s is negative", store.ErrInvalidInput, item.EmployeeID)
			}
			for _, ded := range item.Loans {
				var balance int64
				var status string
				err := tx.QueryRowContext(ctx, `SELECT balance_cents, status FROM loans WHERE id = $1 FOR UPDATE`, ded.LoanID).Scan(&balance, &status)
				if err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						return fmt.Errorf("%w: loan %s is no longer active", store.ErrConflict, ded.LoanID)
					}
					return err
				}
				if status != domain.LoanStatusActive {
					return fmt.Errorf("%w: loan %s is no longer active", store.ErrConflict, ded.LoanID)
				}
				if ded.AmountCents > balance {
					return fmt.Errorf("%w: loan %s deduction %d exceeds balance %d; regenerate the run", store.ErrConflict, ded.LoanID, ded.AmountCents, balance)
				}
				balance -= ded.AmountCents
				status = domain.LoanStatusActive
				if balance == 0 {
					status = domain.LoanStatusSettled
				}
				if _, err := tx.ExecContext(ctx, `UPDATE loans SET balance_cents = $2, status = $3 WHERE id = $1`, ded.LoanID, balance, status); err != nil {
					return err
				}
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE payroll_runs SET status = $2, finalized_by = $3, finalized_at = $4 WHERE id = $1
		`, id, domain.PayrollRunFinalized, finalizedBy, finalizedAt); err != nil {
			return err
		}
		run.Status = domain.PayrollRunFinalized
		run.FinalizedBy = finalizedBy
		run.FinalizedAt = &finalizedAt
		finalized = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return finalized, nil
}
