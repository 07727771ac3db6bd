package reminder

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"taskhub/internal/backend"
	"taskhub/internal/store"
)

// Scanner polls todos for due reminders and fires each reminder instance at
// most once per session. The fired set lives in memory only: a restart
// forgets it, and anything still inside its [fireTime, dueDate) window may
// fire again. Accepted behavior, matching the session-scoped design.
type Scanner struct {
	userID   string
	svc      *backend.Service
	alerter  Alerter
	interval time.Duration

	// now is swappable for tests.
	now func() time.Time

	mu                sync.Mutex
	started           bool
	fired             map[string]struct{}
	permissionAsked   bool
	permissionGranted bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewScanner(svc *backend.Service, alerter Alerter, userID string, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scanner{
		userID:   userID,
		svc:      svc,
		alerter:  alerter,
		interval: interval,
		now:      time.Now,
		fired:    make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the scan loop: once immediately, then on every tick until
// Stop is called or ctx is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)

		s.Scan(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Scan(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop tears the loop down; the ticker is the scanner's only resource
// needing explicit release. Safe to call more than once.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// Scan evaluates every reminder candidate from scratch. A reminder fires
// when now is inside [fireTime, dueDate) and this (todo, fireTime) instance
// has not fired yet this session. Instances whose due date has already
// passed never fire - no flood of stale alerts after the process was idle.
func (s *Scanner) Scan(ctx context.Context) {
	todos, err := s.svc.ReminderCandidates(ctx, s.userID)
	if err != nil {
		log.Printf("reminder: scan skipped: %v", err)
		return
	}

	now := s.now()
	for _, todo := range todos {
		if todo.DueDate == nil || todo.ReminderMinutesBefore == nil {
			continue
		}
		offset := *todo.ReminderMinutesBefore
		if offset <= 0 {
			continue // treated as "no reminder"
		}

		fireTime := todo.DueDate.Add(-time.Duration(offset) * time.Minute)
		if now.Before(fireTime) || !now.Before(*todo.DueDate) {
			continue
		}

		key := firingKey(todo.ID, fireTime)
		s.mu.Lock()
		_, already := s.fired[key]
		if !already {
			// Recorded before the alert goes out so a failing alert path
			// cannot cause a re-fire on the next tick.
			s.fired[key] = struct{}{}
		}
		s.mu.Unlock()
		if already {
			continue
		}

		s.fire(ctx, todo, key)
	}
}

func (s *Scanner) fire(ctx context.Context, todo *store.Todo, tag string) {
	if s.ensurePermission(ctx) {
		if err := s.alerter.Alert(ctx, "Task due soon", todo.Text, tag); err == nil {
			return
		} else {
			log.Printf("reminder: platform alert failed, falling back: %v", err)
		}
	}

	// Fallback: record an in-app reminder notification; it reaches the
	// aggregator through the regular notification feed.
	_, err := s.svc.PushNotification(ctx, &store.Notification{
		UserID: s.userID,
		Type:   store.ReminderType,
		Title:  "Task due soon",
		Body:   todo.Text,
	})
	if err != nil {
		log.Printf("reminder: fallback notification failed: %v", err)
	}
}

// ensurePermission asks the platform at most once per session, lazily on
// the first firing.
func (s *Scanner) ensurePermission(ctx context.Context) bool {
	s.mu.Lock()
	asked, granted := s.permissionAsked, s.permissionGranted
	s.mu.Unlock()
	if asked {
		return granted
	}

	granted, err := s.alerter.RequestPermission(ctx)
	if err != nil {
		log.Printf("reminder: permission request failed: %v", err)
		granted = false
	}

	s.mu.Lock()
	s.permissionAsked = true
	s.permissionGranted = granted
	s.mu.Unlock()
	return granted
}

func firingKey(todoID string, fireTime time.Time) string {
	return fmt.Sprintf("%s@%d", todoID, fireTime.Unix())
}
