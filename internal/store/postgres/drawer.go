package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/cashdrawer"
	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

const drawerColumns = `id, terminal_id, opened_by, opening_float_cents, status, expected_cash_cents,
	counted_cash_cents, variance_cents, variance_status, notes, opened_at, closed_at`

func scanDrawer(row interface{ Scan(...any) error }) (*domain.DrawerSession, error) {
	var d domain.DrawerSession
	var closedAt sql.NullTime
	err := row.Scan(&d.ID, &d.TerminalID, &d.OpenedBy, &d.OpeningFloatCents, &d.Status, &d.ExpectedCashCents,
		&d.CountedCashCents, &d.VarianceCents, &d.VarianceStatus, &d.Notes, &d.OpenedAt, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if closedAt.Valid {
		at := closedAt.Time
		d.ClosedAt = &at
	}
	return &d, nil
}

func (s *Store) CreateDrawerSession(ctx context.Context, session domain.DrawerSession) (*domain.DrawerSession, error) {
	session.TerminalID = strings.TrimSpace(session.TerminalID)
	if session.TerminalID == "" || session.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if session.ID == "" {
		session.ID = xid.New("drawer")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.DrawerStatusOpen
	session.ExpectedCashCents = session.OpeningFloatCents

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drawer_sessions (id, terminal_id, opened_by, opening_float_cents, status, expected_cash_cents, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, session.ID, session.TerminalID, session.OpenedBy, session.OpeningFloatCents, session.Status, session.ExpectedCashCents, session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: terminal %s already has an open drawer", store.ErrConflict, session.TerminalID)
		}
		return nil, err
	}
	created := session
	return &created, nil
}

func (s *Store) GetOpenDrawerSession(ctx context.Context, terminalID string) (*domain.DrawerSession, error) {
	return scanDrawer(s.db.QueryRowContext(ctx, `
		SELECT `+drawerColumns+` FROM drawer_sessions WHERE terminal_id = $1 AND status = 'open'
	`, strings.TrimSpace(terminalID)))
}

func (s *Store) GetDrawerSession(ctx context.Context, id string) (*domain.DrawerSession, error) {
	return scanDrawer(s.db.QueryRowContext(ctx, `SELECT `+drawerColumns+` FROM drawer_sessions WHERE id = $1`, id))
}

func (s *Store) AddCashMovement(ctx context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if err := cashdrawer.ValidateMovement(movement); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	var created domain.CashMovement
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := lockOpenSession(ctx, tx, movement.SessionID); err != nil {
			return err
		}
		m, err := insertMovement(ctx, tx, movement)
		if err != nil {
			return err
		}
		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) ListCashMovements(ctx context.Context, sessionID string) ([]domain.CashMovement, error) {
	if _, err := s.GetDrawerSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return listMovements(ctx, s.db, sessionID)
}

func listMovements(ctx context.Context, q queryer, sessionID string) ([]domain.CashMovement, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, session_id, kind, amount_cents, reference, note, created_by, created_at
		FROM cash_movements
		WHERE session_id = $1
		ORDER BY created_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CashMovement, 0, 64)
	for rows.Next() {
		var m domain.CashMovement
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Kind, &m.AmountCents, &m.Reference, &m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) CloseDrawerSession(ctx context.Context, id string, countedCents int64, notes string, closedAt time.Time) (*domain.DrawerSession, error) {
	if countedCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	var closed *domain.DrawerSession
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		session, err := scanDrawer(tx.QueryRowContext(ctx, `SELECT `+drawerColumns+` FROM drawer_sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if session.Status != domain.DrawerStatusOpen {
			return fmt.Errorf("%w: drawer session already closed", store.ErrConflict)
		}
		movements, err := listMovements(ctx, tx, id)
		if err != nil {
			return err
		}
		summary := cashdrawer.Reconcile(session.OpeningFloatCents, movements, countedCents)
		session.Status = domain.DrawerStatusClosed
		session.ExpectedCashCents = summary.ExpectedCashCents
		session.CountedCashCents = summary.CountedCashCents
		session.VarianceCents = summary.VarianceCents
		session.VarianceStatus = summary.VarianceStatus
		session.Notes = strings.TrimSpace(notes)
		session.ClosedAt = &closedAt

		_, err = tx.ExecContext(ctx, `
			UPDATE drawer_sessions
			SET status = $2, expected_cash_cents = $3, counted_cash_cents = $4, variance_cents = $5,
				variance_status = $6, notes = $7, closed_at = $8
			WHERE id = $1
		`, id, session.Status, session.ExpectedCashCents, session.CountedCashCents, session.VarianceCents,
			session.VarianceStatus, session.Notes, closedAt)
		if err != nil {
			return err
		}
		closed = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// lockOpenSession row-locks the session so ledger appends serialize with close.
func lockOpenSession(ctx context.Context, tx *sql.Tx, sessionID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM drawer_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: drawer session %q", store.ErrNotFound, sessionID)
		}
		return err
	}
	if status != domain.DrawerStatusOpen {
		return fmt.Errorf("%w: drawer session is closed", store.ErrConflict)
	}
	return nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, m domain.CashMovement) (domain.CashMovement, error) {
	if m.ID == "" {
		m.ID = xid.New("cash")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, session_id, kind, amount_cents, reference, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.SessionID, m.Kind, m.AmountCents, m.Reference, m.Note, m.CreatedBy, m.CreatedAt)
	return m, err
}
