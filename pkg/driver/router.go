package driver

import (
	"fmt"
	"sort"
	"sync"

	"avaneesh/lapdm-go/pkg/lapdm"
)

// Router maps channel numbers to LAPDm channels. Common control channel
// traffic (RACH, BCCH, PCH/AGCH) that has no channel of its own goes to the
// first channel added.
type Router struct {
	channels map[uint8]*lapdm.Channel // Key: chan_nr
	order    []uint8
	mu       sync.RWMutex
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		channels: make(map[uint8]*lapdm.Channel),
	}
}

// AddChannel registers ch under chanNr
func (r *Router) AddChannel(chanNr uint8, ch *lapdm.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[chanNr]; exists {
		return fmt.Errorf("%w: chan_nr 0x%02x", ErrDuplicateChannel, chanNr)
	}

	r.channels[chanNr] = ch
	r.order = append(r.order, chanNr)
	return nil
}

// RemoveChannel removes the channel registered under chanNr
func (r *Router) RemoveChannel(chanNr uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[chanNr]; !exists {
		return
	}
	delete(r.channels, chanNr)
	for i, nr := range r.order {
		if nr == chanNr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the channel that handles primitives for chanNr
func (r *Router) Lookup(chanNr uint8) (*lapdm.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ch, ok := r.channels[chanNr]; ok {
		return ch, true
	}
	if isCommonControl(chanNr) && len(r.order) > 0 {
		return r.channels[r.order[0]], true
	}
	return nil, false
}

// Route hands p to the channel its chan_nr addresses
func (r *Router) Route(p *lapdm.Primitive) error {
	ch, ok := r.Lookup(p.ChanNr)
	if !ok {
		return fmt.Errorf("%w: chan_nr 0x%02x", ErrNoChannel, p.ChanNr)
	}
	return ch.PhSapUp(p)
}

// Each calls fn for every channel in ascending chan_nr order
func (r *Router) Each(fn func(chanNr uint8, ch *lapdm.Channel)) {
	r.mu.RLock()
	nrs := make([]uint8, 0, len(r.channels))
	for nr := range r.channels {
		nrs = append(nrs, nr)
	}
	chans := make(map[uint8]*lapdm.Channel, len(r.channels))
	for nr, ch := range r.channels {
		chans[nr] = ch
	}
	r.mu.RUnlock()

	sort.Slice(nrs, func(i, j int) bool { return nrs[i] < nrs[j] })
	for _, nr := range nrs {
		fn(nr, chans[nr])
	}
}

// Count returns the number of registered channels
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels)
}

// Clear removes all channels
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels = make(map[uint8]*lapdm.Channel)
	r.order = nil
}

func isCommonControl(chanNr uint8) bool {
	switch chanNr >> 3 {
	case lapdm.CbitsBCCH, lapdm.CbitsRACH, lapdm.CbitsPCHAGCH:
		return true
	}
	return false
}
