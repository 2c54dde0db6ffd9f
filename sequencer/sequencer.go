package sequencer

import (
	"sort"
	"sync"
	"time"

	"finquest-gamification/models"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultToastDuration = 3 * time.Second
	DefaultBonusDelay    = 600 * time.Millisecond
)

// Notification is an issued step.
type Notification struct {
	ID uint64 `json:"id"`
	Step
	IssuedAt time.Time `json:"issued_at"`
}

type Options struct {
	ToastDuration time.Duration // lifetime of each toast
	BonusDelay    time.Duration // pause between the base and the streak bonus toast
}

// Hooks are invoked in issue order on the sequencer's dispatch goroutine.
// They may call back into the Sequencer.
type Hooks struct {
	OnShow    func(Notification)
	OnExpire  func(Notification)
	OnRefresh func()
}

// batch tracks what is left of one pushed result.
type batch struct {
	delayedToasts int // toasts waiting on their stagger
	modals        int // queued or on screen
	refreshed     bool
}

type queuedModal struct {
	step  Step
	batch *batch
}

type liveToast struct {
	n     Notification
	timer clockwork.Timer
}

// Sequencer owns the notification queue of one UI context. Toasts are shown
// as soon as their result arrives and expire on their own timers; modals are
// shown strictly one at a time and advance on Acknowledge.
type Sequencer struct {
	clock clockwork.Clock
	opts  Options
	hooks Hooks

	mu       sync.Mutex
	nextID   uint64
	modals   []queuedModal
	toasts   map[uint64]*liveToast
	modal    *Notification
	modalOf  *batch
	delays   map[uint64]clockwork.Timer
	nextWait uint64
	closed   bool

	outMu sync.Mutex
	out   []func()
	wake  chan struct{}
	done  chan struct{}
}

// New starts a sequencer. Call Close when the owning UI context goes away.
func New(clock clockwork.Clock, opts Options, hooks Hooks) *Sequencer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.ToastDuration <= 0 {
		opts.ToastDuration = DefaultToastDuration
	}
	if opts.BonusDelay < 0 {
		opts.BonusDelay = 0
	}

	s := &Sequencer{
		clock:  clock,
		opts:   opts,
		hooks:  hooks,
		toasts: make(map[uint64]*liveToast),
		delays: make(map[uint64]clockwork.Timer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.dispatch()
	return s
}

// Push presents one result. Its toasts are issued right away (the streak
// bonus after BonusDelay); its modals queue behind every modal already
// pending. A nil result is ignored.
func (s *Sequencer) Push(r *models.GamificationResult) {
	if r == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	b := &batch{}
	for _, step := range Plan(r) {
		switch {
		case step.Modal:
			s.modals = append(s.modals, queuedModal{step: step, batch: b})
			b.modals++
		case step.Kind == KindStreakBonus && s.opts.BonusDelay > 0:
			b.delayedToasts++
			s.delayToast(step, b)
		default:
			s.issueToast(step)
		}
	}
	s.advance()
	s.maybeRefresh(b)
}

// Acknowledge dismisses the active modal with id and moves on. It reports
// false when id is not the active modal.
func (s *Sequencer) Acknowledge(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.modal == nil || s.modal.ID != id {
		return false
	}
	b := s.modalOf
	s.modal, s.modalOf = nil, nil
	b.modals--
	s.maybeRefresh(b)
	s.advance()
	return true
}

// Toasts returns the visible toasts, oldest first.
func (s *Sequencer) Toasts() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.toasts))
	for _, t := range s.toasts {
		out = append(out, t.n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveModal returns the modal awaiting acknowledgement, if any.
func (s *Sequencer) ActiveModal() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modal == nil {
		return Notification{}, false
	}
	return *s.modal, true
}

// Pending is the number of steps not issued yet.
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.modals) + len(s.delays)
}

// Close stops every timer and drops queued steps and undelivered hooks.
// Nothing is re-sent.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, t := range s.toasts {
		t.timer.Stop()
		delete(s.toasts, id)
	}
	for id, t := range s.delays {
		t.Stop()
		delete(s.delays, id)
	}
	s.modals = nil
	s.modal, s.modalOf = nil, nil
	s.mu.Unlock()

	close(s.done)
}

// advance shows the next queued modal once nothing is on screen and its
// result has issued all of its toasts. mu held.
func (s *Sequencer) advance() {
	if s.modal != nil || len(s.modals) == 0 {
		return
	}
	q := s.modals[0]
	if q.batch.delayedToasts > 0 {
		return
	}
	s.modals = s.modals[1:]

	s.nextID++
	n := Notification{ID: s.nextID, Step: q.step, IssuedAt: s.clock.Now()}
	s.modal, s.modalOf = &n, q.batch
	s.emitShow(n)
}

// issueToast shows a toast and starts its expiry timer. mu held.
func (s *Sequencer) issueToast(step Step) {
	s.nextID++
	n := Notification{ID: s.nextID, Step: step, IssuedAt: s.clock.Now()}
	id := n.ID
	s.toasts[id] = &liveToast{
		n:     n,
		timer: s.clock.AfterFunc(s.opts.ToastDuration, func() { s.expire(id) }),
	}
	s.emitShow(n)
}

// delayToast issues step after BonusDelay. mu held.
func (s *Sequencer) delayToast(step Step, b *batch) {
	s.nextWait++
	wait := s.nextWait
	s.delays[wait] = s.clock.AfterFunc(s.opts.BonusDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		delete(s.delays, wait)
		b.delayedToasts--
		s.issueToast(step)
		s.advance()
		s.maybeRefresh(b)
	})
}

// maybeRefresh fires the refresh hook once b has nothing left to present. mu held.
func (s *Sequencer) maybeRefresh(b *batch) {
	if b.refreshed || b.delayedToasts > 0 || b.modals > 0 {
		return
	}
	b.refreshed = true
	s.emit(func() {
		if s.hooks.OnRefresh != nil {
			s.hooks.OnRefresh()
		}
	})
}

func (s *Sequencer) expire(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	t, ok := s.toasts[id]
	if !ok {
		return
	}
	delete(s.toasts, id)
	n := t.n
	s.emit(func() {
		if s.hooks.OnExpire != nil {
			s.hooks.OnExpire(n)
		}
	})
}

func (s *Sequencer) emitShow(n Notification) {
	s.emit(func() {
		if s.hooks.OnShow != nil {
			s.hooks.OnShow(n)
		}
	})
}

func (s *Sequencer) emit(f func()) {
	s.outMu.Lock()
	s.out = append(s.out, f)
	s.outMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Sequencer) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.outMu.Lock()
			if len(s.out) == 0 {
				s.outMu.Unlock()
				break
			}
			f := s.out[0]
			s.out = s.out[1:]
			s.outMu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			f()
		}
	}
}
