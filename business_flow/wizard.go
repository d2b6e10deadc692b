package businessflow

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/kartu-tanda-boga/media"
	"github.com/amirphl/kartu-tanda-boga/models"
)

// MembershipSubmitter sends a completed form to the membership API.
type MembershipSubmitter interface {
	Submit(ctx context.Context, values models.FormValues, card models.CardDesign) (*models.SubmissionResult, error)
}

// StatePersister mirrors wizard state into durable storage.
type StatePersister interface {
	Persist(sessionID string, state models.WizardState)
	Clear(ctx context.Context, sessionID string)
}

// DetailsPatch carries the Details fields a request wants to change; nil leaves a
// field as it is.
type DetailsPatch struct {
	Name     *string
	Phone    *string
	Email    *string
	Birthday *string
}

// WizardDeps are the collaborators a Wizard drives.
type WizardDeps struct {
	Validator  *DetailsValidator
	Normalizer *media.Normalizer
	Submitter  MembershipSubmitter
	Persister  StatePersister
}

// Wizard is the state machine of one signup session. Every exported method is safe for
// concurrent use; mutations are serialized by the wizard's own lock.
type Wizard struct {
	id   string
	deps WizardDeps

	mu         sync.Mutex
	state      models.WizardState
	catalog    []models.CardDesign
	adapter    *media.CaptureAdapter
	camera     *media.Handle
	submitting bool

	lastActive atomic.Int64
}

// NewWizard creates the wizard for sessionID, resuming from restored when it is not nil.
func NewWizard(sessionID string, deps WizardDeps, restored *models.WizardState) *Wizard {
	if deps.Validator == nil {
		deps.Validator = NewDetailsValidator(nil)
	}
	if deps.Normalizer == nil {
		deps.Normalizer = media.NewNormalizer(0, 0, 0)
	}

	state := models.NewWizardState()
	if restored != nil {
		state = restored.Clone()
	}

	w := &Wizard{id: sessionID, deps: deps, state: state}
	w.touch()
	return w
}

func (w *Wizard) ID() string { return w.id }

// State returns a snapshot of the current state.
func (w *Wizard) State() models.WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	return w.state.Clone()
}

// Submitting reports whether a submission is in flight.
func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// LastActive is when the wizard last served a request.
func (w *Wizard) LastActive() time.Time {
	return time.Unix(0, w.lastActive.Load())
}

func (w *Wizard) touch() {
	w.lastActive.Store(time.Now().UnixNano())
}

// UpdateDetails applies patch to the Details fields.
func (w *Wizard) UpdateDetails(patch DetailsPatch) (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.state.Created != nil {
		return w.state.Clone(), ErrWizardCompleted
	}
	if w.state.CurrentStep != models.StepDetails {
		return w.state.Clone(), ErrWrongStep
	}

	if patch.Name != nil {
		w.state.Values.Name = *patch.Name
	}
	if patch.Phone != nil {
		w.state.Values.Phone = *patch.Phone
	}
	if patch.Email != nil {
		w.state.Values.Email = *patch.Email
	}
	if patch.Birthday != nil {
		w.state.Values.Birthday = *patch.Birthday
	}

	w.persistLocked()
	return w.state.Clone(), nil
}

// NextFromDetails validates the Details step and advances to PhotoCapture. Every
// violation is returned at once as ValidationErrors.
func (w *Wizard) NextFromDetails() (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.state.CurrentStep != models.StepDetails {
		return w.state.Clone(), ErrWrongStep
	}
	if err := w.deps.Validator.ValidateDetails(w.state.Values); err != nil {
		return w.state.Clone(), err
	}

	w.moveLocked(models.StepPhotoCapture)
	return w.state.Clone(), nil
}

// SetPhoto replaces the profile photo.
func (w *Wizard) SetPhoto(photo *media.EncodedImage) (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	return w.setPhotoLocked(photo)
}

func (w *Wizard) setPhotoLocked(photo *media.EncodedImage) (models.WizardState, error) {
	if w.state.Created != nil {
		return w.state.Clone(), ErrWizardCompleted
	}
	if w.state.CurrentStep != models.StepPhotoCapture {
		return w.state.Clone(), ErrWrongStep
	}
	if photo == nil || photo.Len() == 0 {
		return w.state.Clone(), ErrPhotoRequired
	}

	w.state.Values.PhotoFile = photo
	w.persistLocked()
	return w.state.Clone(), nil
}

// UploadPhoto normalizes a gallery file and makes it the profile photo.
func (w *Wizard) UploadPhoto(data []byte) (models.WizardState, error) {
	if err := w.requireStep(models.StepPhotoCapture); err != nil {
		return w.State(), err
	}

	photo, err := w.deps.Normalizer.NormalizeBytes(data)
	if err != nil {
		return w.State(), err
	}
	return w.SetPhoto(photo)
}

// CameraInfo describes the camera a wizard acquired.
type CameraInfo struct {
	Facing     media.Facing
	Constraint string
	Mirrored   bool
}

// OpenCamera acquires a camera through adapter. An already open camera is released
// first.
func (w *Wizard) OpenCamera(ctx context.Context, adapter *media.CaptureAdapter, facing media.Facing) (CameraInfo, error) {
	if err := w.requireStep(models.StepPhotoCapture); err != nil {
		return CameraInfo{}, err
	}
	w.CloseCamera()

	handle, err := adapter.Open(ctx, facing)
	if err != nil {
		log.Printf("wizard camera open failed: session=%s facing=%s err=%v", w.id, facing, err)
		return CameraInfo{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	// the user may have left the step while the camera was starting
	if w.state.CurrentStep != models.StepPhotoCapture {
		handle.Close()
		return CameraInfo{}, ErrWrongStep
	}
	if w.camera != nil {
		w.camera.Close()
	}
	w.adapter = adapter
	w.camera = handle
	return CameraInfo{
		Facing:     handle.Facing(),
		Constraint: handle.Constraints().String(),
		Mirrored:   handle.Facing() == media.FacingFront,
	}, nil
}

// SwitchCamera reopens the camera with the opposite facing mode.
func (w *Wizard) SwitchCamera(ctx context.Context) (CameraInfo, error) {
	w.mu.Lock()
	adapter, handle := w.adapter, w.camera
	w.mu.Unlock()

	if handle == nil || handle.Closed() {
		return CameraInfo{}, ErrCameraNotOpen
	}
	return w.OpenCamera(ctx, adapter, handle.Facing().Opposite())
}

// SetTorch toggles the torch of the open camera.
func (w *Wizard) SetTorch(on bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.camera == nil || w.camera.Closed() {
		return ErrCameraNotOpen
	}
	return w.camera.SetTorch(on)
}

// CapturePhoto grabs a still from the open camera, normalizes it and makes it the
// profile photo.
func (w *Wizard) CapturePhoto(ctx context.Context) (models.WizardState, error) {
	w.mu.Lock()
	handle := w.camera
	w.mu.Unlock()

	if handle == nil || handle.Closed() {
		return w.State(), ErrCameraNotOpen
	}

	frame, err := handle.Capture(ctx)
	if err != nil {
		return w.State(), err
	}
	photo, err := w.deps.Normalizer.Normalize(frame)
	if err != nil {
		return w.State(), err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
	return w.setPhotoLocked(photo)
}

// CloseCamera releases the camera. Safe to call when none is open.
func (w *Wizard) CloseCamera() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCameraLocked()
}

// CameraOpen reports whether a camera handle is held.
func (w *Wizard) CameraOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.camera != nil && !w.camera.Closed()
}

func (w *Wizard) closeCameraLocked() {
	if w.camera != nil {
		w.camera.Close()
		w.camera = nil
	}
}

// NextFromPhoto requires a photo and advances to CardSelection.
func (w *Wizard) NextFromPhoto() (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.state.CurrentStep != models.StepPhotoCapture {
		return w.state.Clone(), ErrWrongStep
	}
	if err := ValidatePhoto(w.state.Values); err != nil {
		return w.state.Clone(), err
	}

	w.moveLocked(models.StepCardSelection)
	return w.state.Clone(), nil
}

// Back moves one step backwards keeping everything entered so far.
func (w *Wizard) Back() (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.submitting {
		return w.state.Clone(), ErrSubmissionInProgress
	}
	if w.state.CurrentStep <= models.StepDetails {
		return w.state.Clone(), ErrNoPreviousStep
	}

	w.moveLocked(w.state.CurrentStep - 1)
	return w.state.Clone(), nil
}

// BackToForm drops the submission result and card choice and returns to Details.
func (w *Wizard) BackToForm(ctx context.Context) (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.submitting {
		return w.state.Clone(), ErrSubmissionInProgress
	}

	w.state.Created = nil
	w.state.SelectedCardURL = ""
	w.moveLocked(models.StepDetails)

	w.clearLocked(ctx)
	w.persistLocked()
	return w.state.Clone(), nil
}

// StartOver discards the whole state and the durable record.
func (w *Wizard) StartOver(ctx context.Context) (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.submitting {
		return w.state.Clone(), ErrSubmissionInProgress
	}

	from := w.state.CurrentStep
	w.closeCameraLocked()
	w.state = models.NewWizardState()
	wizardTransitionsTotal.WithLabelValues(from.String(), w.state.CurrentStep.String()).Inc()

	w.clearLocked(ctx)
	return w.state.Clone(), nil
}

// SetCatalog installs the card catalog, keeping the chosen card when it is still offered.
func (w *Wizard) SetCatalog(cards []models.CardDesign) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.catalog = append([]models.CardDesign(nil), cards...)
	if w.state.SelectedCardURL != "" {
		for i, c := range w.catalog {
			if c.ImageURL == w.state.SelectedCardURL {
				if w.state.CardIndex != i {
					w.state.CardIndex = i
					w.persistLocked()
				}
				return
			}
		}
	}
	if w.state.CurrentStep >= models.StepCardSelection && w.syncCardLocked() {
		w.persistLocked()
	}
}

// Catalog returns the installed catalog.
func (w *Wizard) Catalog() []models.CardDesign {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.CardDesign(nil), w.catalog...)
}

// syncCardLocked clamps the card index into the catalog and points the selected URL at
// that card. It reports whether anything changed. The card of a created membership is
// never moved.
func (w *Wizard) syncCardLocked() bool {
	n := len(w.catalog)
	if n == 0 || w.state.Created != nil {
		return false
	}
	idx := w.state.CardIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	url := w.catalog[idx].ImageURL
	changed := idx != w.state.CardIndex || url != w.state.SelectedCardURL
	w.state.CardIndex = idx
	w.state.SelectedCardURL = url
	return changed
}

// NextCard advances the carousel, wrapping past the last card.
func (w *Wizard) NextCard() (models.WizardState, error) {
	return w.moveCard(func(i, n int) int { return (i + 1) % n })
}

// PrevCard moves the carousel back, wrapping before the first card.
func (w *Wizard) PrevCard() (models.WizardState, error) {
	return w.moveCard(func(i, n int) int {
		if i-1 < 0 {
			return n - 1
		}
		return i - 1
	})
}

// SelectCard jumps straight to index.
func (w *Wizard) SelectCard(index int) (models.WizardState, error) {
	return w.moveCard(func(_, n int) int { return index })
}

func (w *Wizard) moveCard(next func(i, n int) int) (models.WizardState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.state.CurrentStep != models.StepCardSelection {
		return w.state.Clone(), ErrWrongStep
	}
	if w.submitting {
		return w.state.Clone(), ErrSubmissionInProgress
	}
	if w.state.Created != nil {
		return w.state.Clone(), ErrWizardCompleted
	}
	n := len(w.catalog)
	if n == 0 {
		return w.state.Clone(), ErrCatalogEmpty
	}

	idx := next(w.state.CardIndex, n)
	if idx < 0 || idx >= n {
		return w.state.Clone(), fmt.Errorf("%w: %d of %d", ErrCardIndexOutOfRange, idx, n)
	}

	w.state.CardIndex = idx
	w.state.SelectedCardURL = w.catalog[idx].ImageURL
	w.persistLocked()
	return w.state.Clone(), nil
}

// VisibleCards returns the carousel window: the previous, current and next card.
func (w *Wizard) VisibleCards() ([]models.CardDesign, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.catalog)
	if n == 0 {
		return nil, ErrCatalogEmpty
	}
	cur := w.state.CardIndex
	if cur < 0 || cur >= n {
		cur = 0
	}
	prev := cur - 1
	if prev < 0 {
		prev = n - 1
	}
	return []models.CardDesign{w.catalog[prev], w.catalog[cur], w.catalog[(cur+1)%n]}, nil
}

// SelectedCard returns the card under the carousel cursor.
func (w *Wizard) SelectedCard() (models.CardDesign, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedCardLocked()
}

func (w *Wizard) selectedCardLocked() (models.CardDesign, error) {
	n := len(w.catalog)
	if n == 0 {
		if w.state.SelectedCardURL != "" {
			return models.CardDesign{ImageURL: w.state.SelectedCardURL}, nil
		}
		return models.CardDesign{}, ErrCatalogEmpty
	}
	if w.state.CardIndex < 0 || w.state.CardIndex >= n {
		return models.CardDesign{}, ErrCardIndexOutOfRange
	}
	return w.catalog[w.state.CardIndex], nil
}

// Submit sends the form with the selected card to the membership API. Only one
// submission runs at a time; a failed submission leaves the state untouched.
func (w *Wizard) Submit(ctx context.Context) (models.WizardState, error) {
	w.mu.Lock()
	w.touch()

	if w.state.CurrentStep != models.StepCardSelection {
		defer w.mu.Unlock()
		return w.state.Clone(), ErrWrongStep
	}
	if w.submitting {
		defer w.mu.Unlock()
		return w.state.Clone(), ErrSubmissionInProgress
	}
	if w.state.Created != nil {
		// already a member: show the existing result instead of creating another
		defer w.mu.Unlock()
		w.moveLocked(models.StepResult)
		return w.state.Clone(), nil
	}

	values := w.state.Values.Trimmed()
	if err := w.validateAllLocked(values); err != nil {
		defer w.mu.Unlock()
		return w.state.Clone(), err
	}
	card, err := w.selectedCardLocked()
	if err != nil {
		defer w.mu.Unlock()
		return w.state.Clone(), err
	}

	w.submitting = true
	w.mu.Unlock()

	start := time.Now()
	result, err := w.deps.Submitter.Submit(ctx, values, card)
	submissionDuration.Observe(time.Since(start).Seconds())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	w.touch()

	if err != nil {
		submissionsTotal.WithLabelValues("error").Inc()
		log.Printf("membership submission failed: session=%s card=%q err=%v", w.id, card.Name, err)
		return w.state.Clone(), err
	}

	submissionsTotal.WithLabelValues("success").Inc()
	log.Printf("membership created: session=%s serial=%s", w.id, result.Serial)

	w.state.Created = result
	w.state.SelectedCardURL = card.ImageURL
	w.moveLocked(models.StepResult)
	return w.state.Clone(), nil
}

func (w *Wizard) validateAllLocked(values models.FormValues) error {
	var all ValidationErrors
	if err := w.deps.Validator.ValidateDetails(values); err != nil {
		v, ok := AsValidationErrors(err)
		if !ok {
			return err
		}
		all = append(all, v...)
	}
	if err := ValidatePhoto(values); err != nil {
		v, _ := AsValidationErrors(err)
		all = append(all, v...)
	}
	if len(all) > 0 {
		return all
	}
	return nil
}

// Close releases everything the wizard holds. The state itself stays in the durable
// store.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeCameraLocked()
}

func (w *Wizard) requireStep(step models.Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Created != nil && step < models.StepResult {
		return ErrWizardCompleted
	}
	if w.state.CurrentStep != step {
		return ErrWrongStep
	}
	return nil
}

// moveLocked changes step. Leaving PhotoCapture always releases the camera.
func (w *Wizard) moveLocked(to models.Step) {
	from := w.state.CurrentStep
	if from == models.StepPhotoCapture && to != models.StepPhotoCapture {
		w.closeCameraLocked()
	}
	w.state.CurrentStep = to
	if to == models.StepCardSelection {
		w.syncCardLocked()
	}
	if from != to {
		wizardTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	}
	w.persistLocked()
}

func (w *Wizard) clearLocked(ctx context.Context) {
	if w.deps.Persister == nil {
		return
	}
	w.deps.Persister.Clear(ctx, w.id)
}

func (w *Wizard) persistLocked() {
	if w.deps.Persister == nil {
		return
	}
	w.deps.Persister.Persist(w.id, w.state.Clone())
}
