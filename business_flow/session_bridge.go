package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/repository"
	"github.com/amirphl/kartu-tanda-boga/utils"
)

// Field groups of the durable record, one per top-level WizardState field.
const (
	FieldCurrentStep     = "currentStep"
	FieldValues          = "values"
	FieldSelectedCardURL = "selectedCardUrl"
	FieldCardIndex       = "cardIndex"
	FieldCreated         = "created"
)

var fieldGroups = []string{FieldCurrentStep, FieldValues, FieldSelectedCardURL, FieldCardIndex, FieldCreated}

const bridgeWriteTimeout = 3 * time.Second

// SessionBridge mirrors wizard state into a SessionStore. Writes are debounced per
// session and field group, and every failure is logged and dropped.
type SessionBridge struct {
	store     repository.SessionStore
	keyPrefix string
	ttl       time.Duration
	debouncer *utils.Debouncer

	gatesMu sync.Mutex
	gates   map[string]*sessionGate
}

// sessionGate orders the field writes of one session against Clear. Writes hold the
// read side while they talk to the store; Clear holds the write side across the delete
// and marks the gate so writes scheduled before it are dropped.
type sessionGate struct {
	mu      sync.RWMutex
	cleared bool
}

// NewSessionBridge creates a bridge writing records under keyPrefix:<session id>.
func NewSessionBridge(store repository.SessionStore, keyPrefix string, ttl, debounce time.Duration) *SessionBridge {
	if debounce <= 0 {
		debounce = utils.PersistDebounce
	}
	if ttl <= 0 {
		ttl = utils.SessionRecordTTL
	}
	return &SessionBridge{
		store:     store,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		debouncer: utils.NewDebouncer(debounce),
		gates:     make(map[string]*sessionGate),
	}
}

func (b *SessionBridge) gate(sessionID string) *sessionGate {
	b.gatesMu.Lock()
	defer b.gatesMu.Unlock()
	g, ok := b.gates[sessionID]
	if !ok {
		g = &sessionGate{}
		b.gates[sessionID] = g
	}
	return g
}

func (b *SessionBridge) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", b.keyPrefix, sessionID)
}

// Persist schedules a write of every field group of state. The state is serialized
// before this returns, so later changes to the caller's copy are not seen.
func (b *SessionBridge) Persist(sessionID string, state models.WizardState) {
	encoded, failed := encodeState(state)
	for group, gerr := range failed {
		sessionPersistTotal.WithLabelValues(group, "encode_error").Inc()
		log.Printf("session persist encode failed: session=%s group=%s err=%v", sessionID, group, gerr)
	}

	key := b.key(sessionID)
	g := b.gate(sessionID)
	for _, group := range fieldGroups {
		value, ok := encoded[group]
		if !ok {
			continue
		}
		group := group
		b.debouncer.Trigger(sessionID+":"+group, func() {
			b.write(g, sessionID, key, group, value)
		})
	}
}

func (b *SessionBridge) write(g *sessionGate, sessionID, key, group string, value []byte) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cleared {
		sessionPersistTotal.WithLabelValues(group, "dropped").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bridgeWriteTimeout)
	defer cancel()

	if err := b.store.SetField(ctx, key, group, value, b.ttl); err != nil {
		sessionPersistTotal.WithLabelValues(group, "error").Inc()
		log.Printf("session persist failed: session=%s group=%s err=%v", sessionID, group, err)
		return
	}
	sessionPersistTotal.WithLabelValues(group, "ok").Inc()
}

// encodeState serializes each field group on its own so one bad field cannot take the
// others down with it.
func encodeState(state models.WizardState) (map[string][]byte, map[string]error) {
	sources := map[string]any{
		FieldCurrentStep:     state.CurrentStep,
		FieldValues:          state.Values,
		FieldSelectedCardURL: state.SelectedCardURL,
		FieldCardIndex:       state.CardIndex,
		FieldCreated:         state.Created,
	}

	out := make(map[string][]byte, len(sources))
	var errs map[string]error
	for group, v := range sources {
		data, err := json.Marshal(v)
		if err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[group] = err
			continue
		}
		out[group] = data
	}
	return out, errs
}

// Restore rebuilds the last persisted state for sessionID. It returns nil when there is
// nothing usable: no record, a read failure, or any corrupt field.
func (b *SessionBridge) Restore(ctx context.Context, sessionID string) *models.WizardState {
	fields, err := b.store.Fields(ctx, b.key(sessionID))
	if err != nil {
		sessionRestoreTotal.WithLabelValues("error").Inc()
		log.Printf("session restore failed: session=%s err=%v", sessionID, err)
		return nil
	}
	if len(fields) == 0 {
		sessionRestoreTotal.WithLabelValues("empty").Inc()
		return nil
	}

	state, err := decodeState(fields)
	if err != nil {
		sessionRestoreTotal.WithLabelValues("corrupt").Inc()
		log.Printf("session record discarded: session=%s err=%v", sessionID, err)
		return nil
	}

	sessionRestoreTotal.WithLabelValues("ok").Inc()
	return state
}

func decodeState(fields map[string][]byte) (*models.WizardState, error) {
	state := models.NewWizardState()

	targets := map[string]any{
		FieldCurrentStep:     &state.CurrentStep,
		FieldValues:          &state.Values,
		FieldSelectedCardURL: &state.SelectedCardURL,
		FieldCardIndex:       &state.CardIndex,
		FieldCreated:         &state.Created,
	}
	for group, target := range targets {
		raw, ok := fields[group]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target); err != nil {
			return nil, fmt.Errorf("field %s: %w", group, err)
		}
	}

	if !state.CurrentStep.Valid() {
		return nil, fmt.Errorf("field %s: invalid step %d", FieldCurrentStep, state.CurrentStep)
	}
	if state.CardIndex < 0 {
		return nil, fmt.Errorf("field %s: negative index %d", FieldCardIndex, state.CardIndex)
	}
	return &state, nil
}

// Clear drops pending writes for sessionID and deletes its record. Writes already
// talking to the store finish before the delete, and writes that fired but have not
// reached the store yet are dropped.
func (b *SessionBridge) Clear(ctx context.Context, sessionID string) {
	b.debouncer.Cancel(sessionID + ":")

	b.gatesMu.Lock()
	g, ok := b.gates[sessionID]
	delete(b.gates, sessionID)
	b.gatesMu.Unlock()
	if ok {
		g.mu.Lock()
		g.cleared = true
		defer g.mu.Unlock()
	}

	if err := b.store.Delete(ctx, b.key(sessionID)); err != nil {
		log.Printf("session clear failed: session=%s err=%v", sessionID, err)
	}
}

// Release forgets the write ordering kept for sessionID once its wizard is gone.
// Writes still pending keep going to the store.
func (b *SessionBridge) Release(sessionID string) {
	b.gatesMu.Lock()
	defer b.gatesMu.Unlock()
	delete(b.gates, sessionID)
}

// Flush writes everything still waiting in the debounce window.
func (b *SessionBridge) Flush() {
	b.debouncer.Flush()
}

// Pending reports how many field writes are waiting.
func (b *SessionBridge) Pending() int {
	return b.debouncer.Pending()
}

// Close flushes pending writes and stops accepting new ones.
func (b *SessionBridge) Close() {
	b.debouncer.Stop()
}
