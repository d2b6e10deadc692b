package businessflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/kartu-tanda-boga/models"
	"github.com/amirphl/kartu-tanda-boga/repository"
	testingutil "github.com/amirphl/kartu-tanda-boga/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a MemorySessionStore, counting writes and failing the fields
// listed in failFields.
type countingStore struct {
	*repository.MemorySessionStore

	mu         sync.Mutex
	writes     map[string]int
	failFields map[string]bool
	failReads  bool
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemorySessionStore: repository.NewMemorySessionStore(),
		writes:             make(map[string]int),
		failFields:         make(map[string]bool),
	}
}

func (s *countingStore) SetField(ctx context.Context, key, field string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.writes[field]++
	fail := s.failFields[field]
	s.mu.Unlock()
	if fail {
		return errors.New("storage quota exceeded")
	}
	return s.MemorySessionStore.SetField(ctx, key, field, value, ttl)
}

func (s *countingStore) Fields(ctx context.Context, key string) (map[string][]byte, error) {
	s.mu.Lock()
	fail := s.failReads
	s.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return s.MemorySessionStore.Fields(ctx, key)
}

func (s *countingStore) writesOf(field string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[field]
}

func newTestBridge(t *testing.T, store repository.SessionStore) *SessionBridge {
	t.Helper()
	b := NewSessionBridge(store, "wizard", time.Hour, 20*time.Millisecond)
	t.Cleanup(b.Close)
	return b
}

func sampleState() models.WizardState {
	values := testingutil.ValidFormValues(fixedNow)
	return models.WizardState{
		CurrentStep:     models.StepCardSelection,
		Values:          values,
		SelectedCardURL: "https://cdn.example.com/cards/card-3.png",
		CardIndex:       2,
	}
}

func TestSessionBridgeRoundTrip(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	b := newTestBridge(t, store)

	state := sampleState()
	state.Created = testingutil.SampleSubmissionResult("Siti Rahmawati")
	b.Persist("s1", state)
	b.Flush()

	restored := b.Restore(context.Background(), "s1")
	require.NotNil(t, restored)
	assert.Equal(t, state.CurrentStep, restored.CurrentStep)
	assert.Equal(t, state.SelectedCardURL, restored.SelectedCardURL)
	assert.Equal(t, state.CardIndex, restored.CardIndex)
	assert.Equal(t, state.Values.Name, restored.Values.Name)
	assert.Equal(t, state.Values.Birthday, restored.Values.Birthday)
	require.NotNil(t, restored.Values.PhotoFile)
	assert.True(t, state.Values.PhotoFile.Equal(restored.Values.PhotoFile), "photo survives a reload byte for byte")
	require.NotNil(t, restored.Created)
	assert.Equal(t, "KTB00000001", restored.Created.Serial)
	assert.Equal(t, state.Created.Coupons, restored.Created.Coupons)
}

func TestSessionBridgeDebouncesPerField(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	b := NewSessionBridge(store, "wizard", time.Hour, 100*time.Millisecond)
	defer b.Close()

	state := sampleState()
	for i := 0; i < 10; i++ {
		state.Values.Name = "Siti " + string(rune('A'+i))
		b.Persist("s1", state)
	}
	assert.Equal(t, len(fieldGroups), b.Pending())

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return store.writesOf(FieldValues) == 1 && store.writesOf(FieldCurrentStep) == 1
	}, time.Second, 5*time.Millisecond)

	restored := b.Restore(context.Background(), "s1")
	require.NotNil(t, restored)
	assert.Equal(t, "Siti J", restored.Values.Name, "the last write wins")
}

func TestSessionBridgeFieldFailuresAreIndependent(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	store.failFields[FieldValues] = true
	b := newTestBridge(t, store)

	state := sampleState()
	b.Persist("s1", state)
	b.Flush()

	restored := b.Restore(context.Background(), "s1")
	require.NotNil(t, restored)
	assert.Equal(t, models.StepCardSelection, restored.CurrentStep)
	assert.Equal(t, state.SelectedCardURL, restored.SelectedCardURL)
	assert.Empty(t, restored.Values.Name, "the failed group is simply missing")
}

func TestSessionBridgeRestoreDiscardsUnusableRecords(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{name: "corrupt values", fields: map[string]string{FieldCurrentStep: "2", FieldValues: "{not json"}},
		{name: "corrupt created", fields: map[string]string{FieldCurrentStep: "4", FieldCreated: "[1,2"}},
		{name: "step out of range", fields: map[string]string{FieldCurrentStep: "9"}},
		{name: "step zero", fields: map[string]string{FieldCurrentStep: "0"}},
		{name: "negative card index", fields: map[string]string{FieldCurrentStep: "3", FieldCardIndex: "-1"}},
		{name: "bad photo data", fields: map[string]string{FieldValues: `{"name":"a","photoFile":"data:image/jpeg;base64,%%%"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemorySessionStore()
			defer store.Close()
			for field, raw := range tt.fields {
				require.NoError(t, store.SetField(context.Background(), "wizard:s1", field, []byte(raw), time.Hour))
			}

			b := newTestBridge(t, store)
			assert.Nil(t, b.Restore(context.Background(), "s1"))
		})
	}
}

func TestSessionBridgeRestoreMissingOrUnreadable(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	b := newTestBridge(t, store)

	assert.Nil(t, b.Restore(context.Background(), "nobody"))

	b.Persist("s1", sampleState())
	b.Flush()
	store.mu.Lock()
	store.failReads = true
	store.mu.Unlock()
	assert.Nil(t, b.Restore(context.Background(), "s1"))
}

func TestSessionBridgeRestorePartialRecordUsesDefaults(t *testing.T) {
	store := repository.NewMemorySessionStore()
	defer store.Close()
	require.NoError(t, store.SetField(context.Background(), "wizard:s1", FieldValues, []byte(`{"name":"Budi","phone":"08"}`), time.Hour))

	b := newTestBridge(t, store)
	restored := b.Restore(context.Background(), "s1")
	require.NotNil(t, restored)
	assert.Equal(t, models.StepDetails, restored.CurrentStep)
	assert.Equal(t, 1, restored.CardIndex)
	assert.Equal(t, "Budi", restored.Values.Name)
	assert.Nil(t, restored.Created)
}

func TestSessionBridgeClearCancelsPendingWrites(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	b := NewSessionBridge(store, "wizard", time.Hour, time.Hour)
	defer b.Close()

	b.Persist("s1", sampleState())
	b.Flush()
	require.NotNil(t, b.Restore(context.Background(), "s1"))

	b.Persist("s1", sampleState())
	b.Persist("s2", sampleState())
	b.Clear(context.Background(), "s1")

	assert.Equal(t, len(fieldGroups), b.Pending(), "only the other session's writes remain")
	b.Flush()
	assert.Nil(t, b.Restore(context.Background(), "s1"), "a cancelled write must not resurrect the record")
	assert.NotNil(t, b.Restore(context.Background(), "s2"))
}

// gatedStore holds SetField for one field until release is closed.
type gatedStore struct {
	*repository.MemorySessionStore

	field   string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gatedStore) SetField(ctx context.Context, key, field string, value []byte, ttl time.Duration) error {
	if field == s.field {
		s.once.Do(func() { close(s.entered) })
		<-s.release
	}
	return s.MemorySessionStore.SetField(ctx, key, field, value, ttl)
}

func TestSessionBridgeClearWaitsForWriteInFlight(t *testing.T) {
	store := &gatedStore{
		MemorySessionStore: repository.NewMemorySessionStore(),
		field:              FieldCreated,
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	defer store.Close()
	b := NewSessionBridge(store, "wizard", time.Hour, 10*time.Millisecond)
	defer b.Close()

	state := sampleState()
	state.CurrentStep = models.StepResult
	state.Created = testingutil.SampleSubmissionResult("Budi Santoso")
	b.Persist("s1", state)

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("created field write never reached the store")
	}

	cleared := make(chan struct{})
	go func() {
		b.Clear(context.Background(), "s1")
		close(cleared)
	}()

	select {
	case <-cleared:
		t.Fatal("clear returned while a write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-cleared:
	case <-time.After(2 * time.Second):
		t.Fatal("clear never finished")
	}

	assert.Nil(t, b.Restore(context.Background(), "s1"), "a write in flight must not resurrect the record")
}

func TestSessionBridgeDropsWritesFiredBeforeClear(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	b := newTestBridge(t, store)
	ctx := context.Background()

	// a debounced write that already left the timer but has not reached the store
	stale := b.gate("s1")
	b.Clear(ctx, "s1")
	b.write(stale, "s1", b.key("s1"), FieldCreated, []byte(`{"serial":"KTB00000001"}`))

	assert.Equal(t, 0, store.writesOf(FieldCreated))
	assert.Nil(t, b.Restore(ctx, "s1"))

	// writes scheduled after the clear go through
	b.Persist("s1", sampleState())
	b.Flush()
	restored := b.Restore(ctx, "s1")
	require.NotNil(t, restored)
	assert.Equal(t, models.StepCardSelection, restored.CurrentStep)
	assert.Nil(t, restored.Created)
}

func TestSessionBridgeReleaseKeepsPendingWrites(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	b := NewSessionBridge(store, "wizard", time.Hour, time.Hour)
	defer b.Close()

	b.Persist("s1", sampleState())
	b.Release("s1")
	b.Flush()

	assert.NotNil(t, b.Restore(context.Background(), "s1"))
}

func TestSessionBridgeCloseFlushes(t *testing.T) {
	store := newCountingStore()
	defer store.Close()
	b := NewSessionBridge(store, "wizard", time.Hour, time.Hour)

	b.Persist("s1", sampleState())
	b.Close()

	assert.NotNil(t, b.Restore(context.Background(), "s1"))

	b.Persist("s2", sampleState())
	assert.Equal(t, 0, b.Pending(), "writes after close are dropped")
}
