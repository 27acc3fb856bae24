package artifact

import (
	"errors"
	"sync/atomic"
)

// Holder is the serving side's reference to the current artifact. The
// reference is swapped whole; the artifact behind it is never mutated.
type Holder struct {
	p atomic.Pointer[Artifact]
}

// NewHolder returns a Holder pointing at a (which may be nil).
func NewHolder(a *Artifact) *Holder {
	h := &Holder{}
	if a != nil {
		h.p.Store(a)
	}
	return h
}

// Current returns the artifact in use, or nil if none was loaded.
func (h *Holder) Current() *Artifact { return h.p.Load() }

// Swap installs a and returns the artifact it replaced.
func (h *Holder) Swap(a *Artifact) *Artifact { return h.p.Swap(a) }

// Refresh loads the store's current version if it differs from the held one.
// On any error the held artifact is left in place.
func (h *Holder) Refresh(s *Store) (bool, error) {
	v, err := s.Current()
	if err != nil {
		if errors.Is(err, ErrNoArtifact) && h.Current() != nil {
			return false, nil
		}
		return false, err
	}
	if cur := h.Current(); cur != nil && cur.Version == v {
		return false, nil
	}
	a, err := s.Load(v)
	if err != nil {
		return false, err
	}
	h.Swap(a)
	return true, nil
}
