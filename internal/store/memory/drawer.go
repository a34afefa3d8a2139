package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lakshan9910/studio-sub000/internal/cashdrawer"
	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
	"github.com/lakshan9910/studio-sub000/internal/xid"
)

func (s *Store) CreateDrawerSession(_ context.Context, session domain.DrawerSession) (*domain.DrawerSession, error) {
	session.TerminalID = strings.TrimSpace(session.TerminalID)
	if session.TerminalID == "" || session.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, open := s.openDrawer[session.TerminalID]; open {
		return nil, fmt.Errorf("%w: terminal %s already has an open drawer", store.ErrConflict, session.TerminalID)
	}
	if session.ID == "" {
		session.ID = xid.New("drawer")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.DrawerStatusOpen
	session.ExpectedCashCents = session.OpeningFloatCents
	session.CountedCashCents = 0
	session.VarianceCents = 0
	session.VarianceStatus = ""
	session.ClosedAt = nil

	s.drawersByID[session.ID] = session
	s.openDrawer[session.TerminalID] = session.ID
	created := session
	return &created, nil
}

func (s *Store) GetOpenDrawerSession(_ context.Context, terminalID string) (*domain.DrawerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openDrawer[strings.TrimSpace(terminalID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	session := s.drawersByID[id]
	return &session, nil
}

func (s *Store) GetDrawerSession(_ context.Context, id string) (*domain.DrawerSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.drawersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *Store) AddCashMovement(_ context.Context, movement domain.CashMovement) (*domain.CashMovement, error) {
	if err := cashdrawer.ValidateMovement(movement); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireOpenSessionLocked(movement.SessionID); err != nil {
		return nil, err
	}
	created := s.appendMovementLocked(movement)
	return &created, nil
}

func (s *Store) ListCashMovements(_ context.Context, sessionID string) ([]domain.CashMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.drawersByID[sessionID]; !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(s.movements[sessionID]), nil
}

func (s *Store) CloseDrawerSession(_ context.Context, id string, countedCents int64, notes string, closedAt time.Time) (*domain.DrawerSession, error) {
	if countedCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.drawersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.DrawerStatusOpen {
		return nil, fmt.Errorf("%w: drawer session already closed", store.ErrConflict)
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	summary := cashdrawer.Reconcile(session.OpeningFloatCents, s.movements[id], countedCents)
	session.Status = domain.DrawerStatusClosed
	session.ExpectedCashCents = summary.ExpectedCashCents
	session.CountedCashCents = summary.CountedCashCents
	session.VarianceCents = summary.VarianceCents
	session.VarianceStatus = summary.VarianceStatus
	session.Notes = strings.TrimSpace(notes)
	session.ClosedAt = &closedAt

	s.drawersByID[id] = session
	delete(s.openDrawer, session.TerminalID)
	closed := session
	return &closed, nil
}

// requireOpenSessionLocked fails unless the session exists and is open.
// The caller must hold s.mu.
func (s *Store) requireOpenSessionLocked(sessionID string) error {
	session, ok := s.drawersByID[sessionID]
	if !ok {
		return fmt.Errorf("%w: drawer session %q", store.ErrNotFound, sessionID)
	}
	if session.Status != domain.DrawerStatusOpen {
		return fmt.Errorf("%w: drawer session is closed", store.ErrConflict)
	}
	return nil
}

func (s *Store) appendMovementLocked(m domain.CashMovement) domain.CashMovement {
	if m.ID == "" {
		m.ID = xid.New("cash")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.movements[m.SessionID] = append(s.movements[m.SessionID], m)
	return m
}
