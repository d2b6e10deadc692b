package businessflow

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
)

// SessionStateStore is the persistence side the registry needs: mirroring writes and
// resuming sessions.
type SessionStateStore interface {
	StatePersister
	Restore(ctx context.Context, sessionID string) *models.WizardState
	Release(sessionID string)
}

// WizardRegistry keeps one live Wizard per session, resuming from the durable store on
// first use and evicting wizards that went idle.
type WizardRegistry struct {
	deps        WizardDeps
	store       SessionStateStore
	catalog     *CardCatalog
	idleTimeout time.Duration

	mu      sync.Mutex
	wizards map[string]*Wizard

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewWizardRegistry creates a registry. deps.Persister is replaced by store.
func NewWizardRegistry(deps WizardDeps, store SessionStateStore, catalog *CardCatalog, idleTimeout time.Duration) *WizardRegistry {
	deps.Persister = store
	if deps.Validator == nil {
		deps.Validator = NewDetailsValidator(nil)
	}
	return &WizardRegistry{
		deps:        deps,
		store:       store,
		catalog:     catalog,
		idleTimeout: idleTimeout,
		wizards:     make(map[string]*Wizard),
		stop:        make(chan struct{}),
	}
}

// Get returns the wizard for sessionID, creating it when needed. resumed reports whether
// the session already had state, live or persisted.
func (r *WizardRegistry) Get(ctx context.Context, sessionID string) (w *Wizard, resumed bool, err error) {
	if sessionID == "" {
		return nil, false, ErrSessionNotFound
	}

	r.mu.Lock()
	if live, ok := r.wizards[sessionID]; ok {
		r.mu.Unlock()
		return live, true, nil
	}
	r.mu.Unlock()

	restored := r.store.Restore(ctx, sessionID)
	fresh := NewWizard(sessionID, r.deps, restored)
	if r.catalog != nil {
		fresh.SetCatalog(r.catalog.Cards(ctx))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if live, ok := r.wizards[sessionID]; ok {
		// another request won the race
		fresh.Close()
		return live, true, nil
	}
	r.wizards[sessionID] = fresh
	activeWizards.Inc()
	return fresh, restored != nil, nil
}

// Lookup returns the live wizard for sessionID without creating one.
func (r *WizardRegistry) Lookup(sessionID string) (*Wizard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wizards[sessionID]
	return w, ok
}

// Len is the number of live wizards.
func (r *WizardRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.wizards)
}

// Evict releases the wizard for sessionID. Its state stays in the durable store.
func (r *WizardRegistry) Evict(sessionID string) {
	r.mu.Lock()
	w, ok := r.wizards[sessionID]
	if ok {
		delete(r.wizards, sessionID)
		activeWizards.Dec()
	}
	r.mu.Unlock()

	if ok {
		w.Close()
		r.store.Release(sessionID)
	}
}

// EvictIdle releases every wizard idle since before now-idleTimeout, skipping wizards
// with a submission in flight.
func (r *WizardRegistry) EvictIdle(now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idleTimeout)

	r.mu.Lock()
	var idle []*Wizard
	for id, w := range r.wizards {
		if w.LastActive().Before(cutoff) && !w.Submitting() {
			idle = append(idle, w)
			delete(r.wizards, id)
			activeWizards.Dec()
		}
	}
	r.mu.Unlock()

	for _, w := range idle {
		w.Close()
		r.store.Release(w.ID())
	}
	return len(idle)
}

// Start runs idle eviction every interval until Stop.
func (r *WizardRegistry) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.EvictIdle(time.Now()); n > 0 {
					log.Printf("wizard registry evicted idle sessions: count=%d live=%d", n, r.Len())
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends the eviction loop and releases every live wizard.
func (r *WizardRegistry) Stop() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()

	r.mu.Lock()
	wizards := r.wizards
	r.wizards = make(map[string]*Wizard)
	activeWizards.Sub(float64(len(wizards)))
	r.mu.Unlock()

	for _, w := range wizards {
		w.Close()
	}
}
