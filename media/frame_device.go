package media

import (
	"context"
	"image"
	"sync"
)

// FrameDevice is a Devices implementation backed by a single still frame, used when
// the browser shell streams its camera frame to the service. It honours constraints
// the way a real camera would: an exact facing mode that differs from the frame's
// camera, or a frame larger than a Max bound, is unsatisfiable.
type FrameDevice struct {
	frame        image.Image
	facing       Facing
	torchCapable bool

	mu      sync.Mutex
	streams []*frameStream
}

// NewFrameDevice creates a device whose camera has the given facing mode.
func NewFrameDevice(frame image.Image, facing Facing, torchCapable bool) *FrameDevice {
	return &FrameDevice{frame: frame, facing: facing, torchCapable: torchCapable}
}

func (d *FrameDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.frame == nil {
		return nil, ErrNotFound
	}
	if c.Exact && c.Facing != "" && c.Facing != d.facing {
		return nil, ErrOverconstrained
	}
	b := d.frame.Bounds()
	if (c.Width.Max > 0 && b.Dx() > c.Width.Max) || (c.Height.Max > 0 && b.Dy() > c.Height.Max) {
		return nil, ErrOverconstrained
	}

	s := &frameStream{device: d}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// ActiveStreams counts streams not yet stopped.
func (d *FrameDevice) ActiveStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.streams {
		if !s.isStopped() {
			n++
		}
	}
	return n
}

type frameStream struct {
	device *FrameDevice

	mu      sync.Mutex
	stopped bool
	torch   bool
}

func (s *frameStream) Facing() Facing { return s.device.facing }

func (s *frameStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isStopped() {
		return nil, ErrNotReadable
	}
	return s.device.frame, nil
}

func (s *frameStream) SetTorch(on bool) error {
	if !s.device.torchCapable {
		return ErrTorchUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrNotReadable
	}
	s.torch = on
	return nil
}

func (s *frameStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.torch = false
}

func (s *frameStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
