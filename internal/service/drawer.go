package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lakshan9910/studio-sub000/internal/cashdrawer"
	"github.com/lakshan9910/studio-sub000/internal/domain"
	"github.com/lakshan9910/studio-sub000/internal/store"
)

func (s *Service) OpenDrawer(ctx context.Context, req domain.DrawerOpenRequest) (domain.DrawerResponse, error) {
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	if err := s.check(req); err != nil {
		return domain.DrawerResponse{}, err
	}
	actor := actorOrSystem(ctx)

	session, err := s.repo.CreateDrawerSession(ctx, domain.DrawerSession{
		TerminalID:        req.TerminalID,
		OpenedBy:          actor.Username,
		OpeningFloatCents: req.OpeningFloatCents,
		OpenedAt:          s.now(),
	})
	if err != nil {
		return domain.DrawerResponse{}, err
	}
	s.logAudit(ctx, "drawer_open", "drawer_session", session.ID, fmt.Sprintf("terminal=%s,float=%d", session.TerminalID, session.OpeningFloatCents))
	return domain.DrawerResponse{
		Session:   *session,
		Summary:   cashdrawer.Expected(session.OpeningFloatCents, nil),
		Movements: []domain.CashMovement{},
	}, nil
}

// GetOpenDrawer returns the terminal's open session with a live
// reconciliation summary; counted cash is zero until close.
func (s *Service) GetOpenDrawer(ctx context.Context, terminalID string) (domain.DrawerResponse, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.DrawerResponse{}, invalid("terminal_id", "required")
	}
	session, err := s.repo.GetOpenDrawerSession(ctx, terminalID)
	if err != nil {
		return domain.DrawerResponse{}, err
	}
	return s.drawerResponse(ctx, *session)
}

func (s *Service) GetDrawerSession(ctx context.Context, id string) (domain.DrawerResponse, error) {
	session, err := s.repo.GetDrawerSession(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.DrawerResponse{}, err
	}
	return s.drawerResponse(ctx, *session)
}

func (s *Service) RecordCashMovement(ctx context.Context, req domain.DrawerMovementRequest) (domain.CashMovement, error) {
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	req.Note = strings.TrimSpace(req.Note)
	if err := s.check(req); err != nil {
		return domain.CashMovement{}, err
	}
	session, err := s.openSession(ctx, req.TerminalID)
	if err != nil {
		return domain.CashMovement{}, err
	}

	actor := actorOrSystem(ctx)
	created, err := s.repo.AddCashMovement(ctx, domain.CashMovement{
		SessionID:   session.ID,
		Kind:        req.Kind,
		AmountCents: req.AmountCents,
		Note:        req.Note,
		CreatedBy:   actor.Username,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return domain.CashMovement{}, err
	}
	s.logAudit(ctx, "drawer_"+created.Kind, "drawer_session", session.ID, fmt.Sprintf("amount=%d,note=%s", created.AmountCents, created.Note))
	return *created, nil
}

func (s *Service) CloseDrawer(ctx context.Context, req domain.DrawerCloseRequest) (domain.DrawerResponse, error) {
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := s.check(req); err != nil {
		return domain.DrawerResponse{}, err
	}
	session, err := s.openSession(ctx, req.TerminalID)
	if err != nil {
		return domain.DrawerResponse{}, err
	}

	closed, err := s.repo.CloseDrawerSession(ctx, session.ID, req.CountedCashCents, req.Notes, s.now())
	if err != nil {
		return domain.DrawerResponse{}, err
	}
	s.metrics.DrawerClosed(closed.VarianceCents)
	s.logAudit(ctx, "drawer_close", "drawer_session", closed.ID, fmt.Sprintf("expected=%d,counted=%d,variance=%d,status=%s", closed.ExpectedCashCents, closed.CountedCashCents, closed.VarianceCents, closed.VarianceStatus))
	return s.drawerResponse(ctx, *closed)
}

func (s *Service) openSession(ctx context.Context, terminalID string) (*domain.DrawerSession, error) {
	session, err := s.repo.GetOpenDrawerSession(ctx, terminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: terminal %s has no open drawer session", store.ErrConflict, terminalID)
		}
		return nil, err
	}
	return session, nil
}

func (s *Service) drawerResponse(ctx context.Context, session domain.DrawerSession) (domain.DrawerResponse, error) {
	movements, err := s.repo.ListCashMovements(ctx, session.ID)
	if err != nil {
		return domain.DrawerResponse{}, err
	}
	summary := cashdrawer.Expected(session.OpeningFloatCents, movements)
	if session.Status == domain.DrawerStatusClosed {
		summary = cashdrawer.Reconcile(session.OpeningFloatCents, movements, session.CountedCashCents)
	}
	return domain.DrawerResponse{Session: session, Summary: summary, Movements: movements}, nil
}
