package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/checkout"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/contracts/api"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/pkg/logger"
)

// SessionService keeps wizards server side for clients that cannot hold one.
// Every call reloads the session, which also slides its TTL.
type SessionService struct {
	store domain.SessionStore
	svc   *CheckoutService
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionService(store domain.SessionStore, svc *CheckoutService, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionService{store: store, svc: svc, ttl: ttl, now: time.Now}
}

func (s *SessionService) flow(actor Actor) *checkout.Flow {
	return checkout.NewFlow(NewLocalBackend(s.svc, actor), s.svc.Promos(), logger.Logger)
}

func (s *SessionService) Create(ctx context.Context, actor Actor, req api.CreateSessionRequest) (api.SessionView, error) {
	f := s.flow(actor)
	var (
		w   *domain.Wizard
		err error
	)
	if req.UpgradeTierID != nil {
		w, err = f.StartUpgrade(ctx, req.EventID, *req.UpgradeTierID)
	} else {
		w, err = f.Start(ctx, req.EventID)
	}
	if err != nil {
		return api.SessionView{}, err
	}

	now := s.now().UTC()
	sess := domain.CheckoutSession{
		ID:        uuid.New(),
		UserID:    actor.UserID,
		Wizard:    w.State(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, sess, s.ttl); err != nil {
		return api.SessionView{}, err
	}
	return api.SessionView{Session: sess, Summary: w.Summary()}, nil
}

// load hides other users' sessions behind ErrSessionNotFound.
func (s *SessionService) load(ctx context.Context, actor Actor, id uuid.UUID) (domain.CheckoutSession, *domain.Wizard, error) {
	sess, err := s.store.Load(ctx, id, s.ttl)
	if err != nil {
		return domain.CheckoutSession{}, nil, err
	}
	if sess.UserID != actor.UserID {
		return domain.CheckoutSession{}, nil, domain.ErrSessionNotFound
	}
	w, err := domain.RestoreWizard(sess.Wizard, s.svc.Promos())
	if err != nil {
		return domain.CheckoutSession{}, nil, err
	}
	return sess, w, nil
}

func (s *SessionService) save(ctx context.Context, sess domain.CheckoutSession, w *domain.Wizard) (api.SessionView, error) {
	sess.Wizard = w.State()
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess, s.ttl); err != nil {
		return api.SessionView{}, err
	}
	return api.SessionView{Session: sess, Summary: w.Summary()}, nil
}

// mutate applies fn and persists only when it succeeds.
func (s *SessionService) mutate(ctx context.Context, actor Actor, id uuid.UUID, fn func(*domain.Wizard) error) (api.SessionView, error) {
	sess, w, err := s.load(ctx, actor, id)
	if err != nil {
		return api.SessionView{}, err
	}
	if err := fn(w); err != nil {
		return api.SessionView{}, err
	}
	return s.save(ctx, sess, w)
}

func (s *SessionService) Get(ctx context.Context, actor Actor, id uuid.UUID) (api.SessionView, error) {
	sess, w, err := s.load(ctx, actor, id)
	if err != nil {
		return api.SessionView{}, err
	}
	return api.SessionView{Session: sess, Summary: w.Summary()}, nil
}

func (s *SessionService) UpdateQuantity(ctx context.Context, actor Actor, id uuid.UUID, req api.QuantityRequest) (api.SessionView, error) {
	return s.mutate(ctx, actor, id, func(w *domain.Wizard) error {
		_, err := w.UpdateQuantity(req.TierID, req.Delta)
		return err
	})
}

func (s *SessionService) SetAttendee(ctx context.Context, actor Actor, id uuid.UUID, index int, a domain.AttendeeInfo) (api.SessionView, error) {
	return s.mutate(ctx, actor, id, func(w *domain.Wizard) error {
		return w.SetAttendee(index, a)
	})
}

func (s *SessionService) ApplyPromo(ctx context.Context, actor Actor, id uuid.UUID, code string) (api.SessionView, error) {
	return s.mutate(ctx, actor, id, func(w *domain.Wizard) error {
		return w.ApplyPromo(code)
	})
}

func (s *SessionService) RemovePromo(ctx context.Context, actor Actor, id uuid.UUID) (api.SessionView, error) {
	return s.mutate(ctx, actor, id, func(w *domain.Wizard) error {
		return w.RemovePromo()
	})
}

// Next advances one step. Reaching review refreshes the capacity snapshot so
// the waitlist warning reflects current numbers.
func (s *SessionService) Next(ctx context.Context, actor Actor, id uuid.UUID) (api.SessionView, error) {
	return s.mutate(ctx, actor, id, func(w *domain.Wizard) error {
		if err := w.Next(); err != nil {
			return err
		}
		if w.Step() == domain.StepReview {
			if err := s.flow(actor).Refresh(ctx, w); err != nil {
				logger.WithCtx(ctx).Warn().Err(err).Msg("capacity refresh failed")
			}
		}
		return nil
	})
}

func (s *SessionService) Back(ctx context.Context, actor Actor, id uuid.UUID) (api.SessionView, error) {
	return s.mutate(ctx, actor, id, func(w *domain.Wizard) error {
		return w.Back()
	})
}

const submitLockTTL = time.Minute

// Submit pays for the session's selection under the session's submit lock.
// Whatever the flow recorded is saved even when it fails partway, so a
// resubmit picks up where this one stopped.
func (s *SessionService) Submit(ctx context.Context, actor Actor, id uuid.UUID) (api.SessionView, error) {
	if _, _, err := s.load(ctx, actor, id); err != nil {
		return api.SessionView{}, err
	}
	unlock, err := s.store.LockSubmit(ctx, id, submitLockTTL)
	if err != nil {
		return api.SessionView{}, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("session_id", id.String()).Msg("submit lock release failed")
		}
	}()

	// reload under the lock; a concurrent submit may have finished
	sess, w, err := s.load(ctx, actor, id)
	if err != nil {
		return api.SessionView{}, err
	}
	res, submitErr := s.flow(actor).Submit(ctx, w)
	if submitErr == nil {
		sess.Mismatch = res.Mismatch
	}
	view, err := s.save(context.WithoutCancel(ctx), sess, w)
	if submitErr != nil {
		if err != nil {
			logger.WithCtx(ctx).Error().Err(err).Str("session_id", id.String()).Msg("saving partial submit failed")
		}
		return api.SessionView{}, submitErr
	}
	return view, err
}

func (s *SessionService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	if _, _, err := s.load(ctx, actor, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}
