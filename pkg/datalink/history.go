package datalink

import "avaneesh/lapdm-go/pkg/frame"

// historySlot keeps one transmitted I frame body until it is acknowledged
type historySlot struct {
	occupied bool
	more     bool
	info     []byte
}

// history is indexed by N(S); a slot is only meaningful while occupied
type history [frame.HistorySize]historySlot

func (h *history) store(ns uint8, info []byte, more bool) {
	slot := &h[ns%frame.HistorySize]
	slot.occupied = true
	slot.more = more
	slot.info = append(slot.info[:0], info...)
}

func (h *history) get(ns uint8) (historySlot, bool) {
	slot := h[ns%frame.HistorySize]
	return slot, slot.occupied
}

func (h *history) release(ns uint8) {
	slot := &h[ns%frame.HistorySize]
	slot.occupied = false
	slot.more = false
	slot.info = slot.info[:0]
}

func (h *history) clear() {
	for i := range h {
		h.release(uint8(i))
	}
}

func (h *history) count() int {
	n := 0
	for i := range h {
		if h[i].occupied {
			n++
		}
	}
	return n
}

// Modulo 8 sequence arithmetic
func inc(v uint8) uint8 {
	return (v + 1) & 0x07
}

func sub(a, b uint8) uint8 {
	return (a - b) & 0x07
}
