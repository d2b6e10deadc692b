package media

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// defaultAttemptTimeout bounds a single acquisition attempt
const defaultAttemptTimeout = 5 * time.Second

// Devices is the platform camera API the adapter drives.
type Devices interface {
	// Open acquires a camera satisfying c, or fails with one of the Err* sentinels.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired camera.
type Stream interface {
	// Facing is the facing mode of the camera actually acquired.
	Facing() Facing
	// Frame returns the current live frame, unmirrored.
	Frame(ctx context.Context) (image.Image, error)
	SetTorch(on bool) error
	// Stop releases the device; it must return only after the release is done.
	Stop()
}

// CaptureAdapter opens cameras through an ordered constraint chain.
type CaptureAdapter struct {
	devices        Devices
	attemptTimeout time.Duration
}

// NewCaptureAdapter creates an adapter; a nil devices value makes every Open fail
// with Unsupported.
func NewCaptureAdapter(devices Devices, attemptTimeout time.Duration) *CaptureAdapter {
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	return &CaptureAdapter{devices: devices, attemptTimeout: attemptTimeout}
}

// Open acquires a camera for facing. When the front camera cannot satisfy any
// constraint set, the back camera is tried once before giving up.
func (a *CaptureAdapter) Open(ctx context.Context, facing Facing) (*Handle, error) {
	if a.devices == nil {
		return nil, &CaptureError{Kind: Unsupported, Err: ErrNotSupported}
	}

	h, err := a.openChain(ctx, facing)
	if err != nil && facing == FacingFront && IsCaptureKind(err, ConstraintUnsatisfiable) {
		log.Printf("camera: front camera unsatisfiable, falling back to back camera: %v", err)
		return a.openChain(ctx, FacingBack)
	}
	return h, err
}

// Switch closes h and opens the opposite camera.
func (a *CaptureAdapter) Switch(ctx context.Context, h *Handle) (*Handle, error) {
	next := FacingFront
	if h != nil {
		next = h.Facing().Opposite()
		h.Close()
	}
	return a.Open(ctx, next)
}

func (a *CaptureAdapter) openChain(ctx context.Context, facing Facing) (*Handle, error) {
	var last error
	for _, c := range ConstraintChain(facing) {
		stream, err := a.attempt(ctx, c)
		if err == nil {
			cameraAttemptsTotal.WithLabelValues(string(facing), c.Label, "ok").Inc()
			return newHandle(stream, c), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		ce := classify(err)
		cameraAttemptsTotal.WithLabelValues(string(facing), c.Label, string(ce.Kind)).Inc()
		last = ce

		// No constraint shape can fix these.
		if ce.Kind == PermissionDenied || ce.Kind == Unsupported {
			return nil, ce
		}
	}
	return nil, last
}

type openResult struct {
	stream Stream
	err    error
}

// attempt runs one Open with a bounded wait. A stream that arrives after the wait
// expired is stopped right away so the device is not leaked.
func (a *CaptureAdapter) attempt(ctx context.Context, c Constraints) (Stream, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, a.attemptTimeout)
	defer cancel()

	done := make(chan openResult, 1)
	go func() {
		s, err := a.devices.Open(attemptCtx, c)
		done <- openResult{stream: s, err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil && r.stream == nil {
			return nil, ErrNotFound
		}
		return r.stream, r.err
	case <-attemptCtx.Done():
		go func() {
			if r := <-done; r.err == nil && r.stream != nil {
				r.stream.Stop()
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrAcquireTimedOut
	}
}

// Handle is an open camera.
type Handle struct {
	stream      Stream
	facing      Facing
	constraints Constraints

	capturing atomic.Bool

	mu     sync.Mutex
	torch  bool
	closed bool
	once   sync.Once
}

func newHandle(s Stream, c Constraints) *Handle {
	facing := s.Facing()
	if facing == "" {
		facing = c.Facing
	}
	return &Handle{stream: s, facing: facing, constraints: c}
}

// Facing is the facing mode of the acquired camera.
func (h *Handle) Facing() Facing { return h.facing }

// Constraints is the constraint set the platform accepted.
func (h *Handle) Constraints() Constraints { return h.constraints }

// Capture grabs the live frame. Front camera frames are mirrored to match the preview
// the user saw; back camera frames never are. Calls must not overlap.
func (h *Handle) Capture(ctx context.Context) (image.Image, error) {
	if h == nil || h.Closed() {
		return nil, ErrHandleClosed
	}
	if !h.capturing.CompareAndSwap(false, true) {
		return nil, ErrCaptureInFlight
	}
	defer h.capturing.Store(false)

	frame, err := h.stream.Frame(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, classify(err)
	}
	if frame == nil {
		return nil, &CaptureError{Kind: DeviceBusy, Err: errors.New("camera returned no frame")}
	}
	if h.facing == FacingFront {
		return Mirror(frame), nil
	}
	return frame, nil
}

// SetTorch switches the flashlight.
func (h *Handle) SetTorch(on bool) error {
	if h == nil {
		return ErrHandleClosed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if err := h.stream.SetTorch(on); err != nil {
		if errors.Is(err, ErrTorchUnsupported) {
			return &CaptureError{Kind: Unsupported, Err: err}
		}
		return classify(err)
	}
	h.torch = on
	return nil
}

// Torch reports the last torch state successfully applied.
func (h *Handle) Torch() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.torch
}

// Close releases the camera. It is safe on a nil handle and on repeated calls.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.torch = false
		h.mu.Unlock()
		h.stream.Stop()
	})
}

// Closed reports whether Close ran.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Mirror flips img horizontally.
func Mirror(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-x, y-b.Min.Y, img.At(x, y))
		}
	}
	return dst
}
