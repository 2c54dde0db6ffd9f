package client

import (
	"context"
	"sync"
	"time"

	"finquest-gamification/models"
	"finquest-gamification/sequencer"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Session ties one user's UI context together: it reports events, feeds the
// results to a sequencer and refreshes the snapshot once a result has been
// fully presented.
type Session struct {
	client *Client
	userID string
	seq    *sequencer.Sequencer

	mu         sync.RWMutex
	snapshot   *models.StateSnapshot
	onSnapshot func(*models.StateSnapshot)

	ctx    context.Context
	cancel context.CancelFunc
}

type SessionOptions struct {
	Clock      clockwork.Clock
	Sequencer  sequencer.Options
	OnShow     func(sequencer.Notification)
	OnExpire   func(sequencer.Notification)
	OnSnapshot func(*models.StateSnapshot)
}

func NewSession(c *Client, userID string, opts SessionOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		client:     c,
		userID:     userID,
		onSnapshot: opts.OnSnapshot,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.seq = sequencer.New(opts.Clock, opts.Sequencer, sequencer.Hooks{
		OnShow:    opts.OnShow,
		OnExpire:  opts.OnExpire,
		OnRefresh: s.refresh,
	})
	return s
}

// Track reports ev and queues whatever it produced. It never fails; the
// returned result is nil when the engine could not be reached.
func (s *Session) Track(ctx context.Context, ev models.GamificationEvent) *models.GamificationResult {
	r := s.client.Emit(ctx, s.userID, ev)
	s.seq.Push(r)
	return r
}

// Sequencer exposes the notification queue to the UI.
func (s *Session) Sequencer() *sequencer.Sequencer {
	return s.seq
}

// Snapshot returns the last fetched state, or nil before the first refresh.
func (s *Session) Snapshot() *models.StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Refresh re-fetches the snapshot now.
func (s *Session) Refresh(ctx context.Context) (*models.StateSnapshot, error) {
	snap, err := s.client.Snapshot(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.snapshot = snap
	cb := s.onSnapshot
	s.mu.Unlock()
	if cb != nil {
		cb(snap)
	}
	return snap, nil
}

func (s *Session) refresh() {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if _, err := s.Refresh(ctx); err != nil && s.ctx.Err() == nil {
		zap.L().Warn("gamification snapshot refresh failed", zap.String("user_id", s.userID), zap.Error(err))
	}
}

// Close tears the session down: pending modals are dropped and in-flight
// refreshes are cancelled.
func (s *Session) Close() {
	s.cancel()
	s.seq.Close()
}
