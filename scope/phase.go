package scope

import "fmt"

// Phase is what a scope family is currently doing.
type Phase uint8

const (
	PhaseNone Phase = iota
	PhaseDigest
	PhaseApply
)

func (p Phase) String() string {
	switch p {
	case PhaseDigest:
		return "$digest"
	case PhaseApply:
		return "$apply"
	default:
		return ""
	}
}

// Phase returns the phase of the family s belongs to.
func (s *Scope) Phase() Phase {
	return s.fam().phase
}

func (s *Scope) beginPhase(p Phase) error {
	fam := s.fam()
	if fam.phase != PhaseNone {
		return fmt.Errorf("%w: %s", ErrPhaseConflict, fam.phase)
	}
	fam.phase = p
	return nil
}

func (s *Scope) clearPhase() {
	s.fam().phase = PhaseNone
}
