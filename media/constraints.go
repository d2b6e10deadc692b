package media

import "fmt"

// Facing selects the physical camera.
type Facing string

const (
	FacingFront Facing = "user"
	FacingBack  Facing = "environment"
)

// ParseFacing accepts the API spellings of a facing mode.
func ParseFacing(s string) (Facing, error) {
	switch s {
	case "front", "user", "selfie":
		return FacingFront, nil
	case "back", "environment", "rear":
		return FacingBack, nil
	}
	return "", fmt.Errorf("unknown facing mode %q", s)
}

// Opposite returns the other camera.
func (f Facing) Opposite() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// Range bounds one video dimension; zero fields are unset.
type Range struct {
	Ideal int
	Max   int
}

// Constraints describe one acquisition attempt.
type Constraints struct {
	// Label names the attempt in logs and metrics.
	Label  string
	Facing Facing
	// Exact requires the camera's facing to equal Facing instead of merely preferring it.
	Exact  bool
	Width  Range
	Height Range
}

func (c Constraints) String() string {
	if c.Facing == "" {
		return c.Label
	}
	return fmt.Sprintf("%s(%s)", c.Label, c.Facing)
}

// ConstraintChain lists the attempts for a facing mode, most specific first. Each device
// and browser combination rejects a different subset of these shapes; the adapter walks
// the list until one is accepted.
func ConstraintChain(facing Facing) []Constraints {
	if facing == FacingFront {
		return []Constraints{
			{
				Label:  "exact",
				Facing: FacingFront,
				Exact:  true,
				Width:  Range{Ideal: 640, Max: 1280},
				Height: Range{Ideal: 480, Max: 960},
			},
			{
				Label:  "ideal",
				Facing: FacingFront,
				Width:  Range{Ideal: 640},
				Height: Range{Ideal: 480},
			},
			{Label: "facing", Facing: FacingFront},
			{Label: "any"},
		}
	}
	return []Constraints{
		{
			Label:  "exact",
			Facing: FacingBack,
			Exact:  true,
			Width:  Range{Ideal: 1280},
			Height: Range{Ideal: 960},
		},
		{
			Label:  "ideal",
			Facing: FacingBack,
			Width:  Range{Ideal: 1280},
			Height: Range{Ideal: 960},
		},
		{Label: "facing", Facing: FacingBack},
		{Label: "any"},
	}
}
