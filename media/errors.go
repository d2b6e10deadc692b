package media

import (
	"errors"
	"fmt"
)

// CaptureErrorKind classifies camera acquisition and capture failures.
type CaptureErrorKind string

const (
	PermissionDenied        CaptureErrorKind = "PermissionDenied"
	DeviceNotFound          CaptureErrorKind = "DeviceNotFound"
	DeviceBusy              CaptureErrorKind = "DeviceBusy"
	ConstraintUnsatisfiable CaptureErrorKind = "ConstraintUnsatisfiable"
	Unsupported             CaptureErrorKind = "Unsupported"
)

// Sentinel errors a Devices implementation returns; the adapter classifies them.
var (
	ErrNotAllowed       = errors.New("camera permission denied")
	ErrNotFound         = errors.New("no camera matches the request")
	ErrNotReadable      = errors.New("camera is in use or unreadable")
	ErrOverconstrained  = errors.New("camera cannot satisfy constraints")
	ErrNotSupported     = errors.New("camera api not supported")
	ErrHandleClosed     = errors.New("camera handle is closed")
	ErrCaptureInFlight  = errors.New("a capture is already running on this handle")
	ErrAcquireTimedOut  = errors.New("camera acquisition timed out")
	ErrTorchUnsupported = errors.New("torch is not available on this camera")
)

// CaptureError is what callers of the adapter see.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %s: %v", e.Kind, e.Err)
	}
	return "capture " + string(e.Kind)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Message is the remediation hint shown next to the camera preview.
func (e *CaptureError) Message() string {
	switch e.Kind {
	case PermissionDenied:
		return "Akses kamera ditolak. Izinkan akses kamera di pengaturan browser lalu coba lagi."
	case DeviceNotFound:
		return "Kamera tidak ditemukan pada perangkat ini."
	case DeviceBusy:
		return "Kamera sedang digunakan aplikasi lain. Tutup aplikasi tersebut lalu coba lagi."
	case ConstraintUnsatisfiable:
		return "Kamera tidak mendukung pengaturan yang diminta."
	default:
		return "Kamera tidak didukung pada perangkat ini. Silakan unggah foto dari galeri."
	}
}

// classify maps a device error onto the capture taxonomy.
func classify(err error) *CaptureError {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, ErrNotAllowed):
		return &CaptureError{Kind: PermissionDenied, Err: err}
	case errors.Is(err, ErrNotFound):
		return &CaptureError{Kind: DeviceNotFound, Err: err}
	case errors.Is(err, ErrNotReadable), errors.Is(err, ErrAcquireTimedOut):
		return &CaptureError{Kind: DeviceBusy, Err: err}
	case errors.Is(err, ErrOverconstrained):
		return &CaptureError{Kind: ConstraintUnsatisfiable, Err: err}
	default:
		return &CaptureError{Kind: Unsupported, Err: err}
	}
}

// IsCaptureKind reports whether err is a CaptureError of the given kind.
func IsCaptureKind(err error, kind CaptureErrorKind) bool {
	var ce *CaptureError
	return errors.As(err, &ce) && ce.Kind == kind
}

// DecodeError means the input bytes are not an image we can read.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode image: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means the target canvas could not be produced or encoded.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "encode image: " + e.Err.Error() }
func (e *EncodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is, or wraps, a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsEncodeError reports whether err is, or wraps, an EncodeError.
func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}
