// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"sort"
)

// State is the set of known swaps, transactions and swundles. State is only
// modified by apply.
type State struct {
	Swaps    map[string]*Swap
	Txs      map[string]*Transaction
	Swundles map[string]*Swundle
}

func newState() *State {
	return &State{
		Swaps:    make(map[string]*Swap),
		Txs:      make(map[string]*Transaction),
		Swundles: make(map[string]*Swundle),
	}
}

// apply folds the event into the state. Records are copied so that later
// changes by the event's creator are not reflected.
func (s *State) apply(e *Event) {
	for _, swap := range e.Swaps {
		s.Swaps[swap.ID] = swap.copy()
	}
	for _, tx := range e.Txs {
		s.Txs[tx.ID] = tx.copy()
	}

	switch e.Type {
	case SwundleAdded:
		s.Swundles[e.Swundle.ID] = e.Swundle.copy()
	case SwundleRemoved:
		s.removeSwundle(e.SwundleID)
	case SwundleDismissed:
		if sw := s.Swundles[e.SwundleID]; sw != nil {
			sw.Dismissed = true
		}
	case InitStarted, InitSuccess, InitFailed:
		s.setPhase(e, func(sw *Swundle) *Phase { return &sw.Init })
	case SignStarted, SignSuccess, SignFailed:
		s.setPhase(e, func(sw *Swundle) *Phase { return &sw.Sign })
	case SendStarted, SendSuccess, SendFailed:
		s.setPhase(e, func(sw *Swundle) *Phase { return &sw.Send })
	}
}

func (s *State) setPhase(e *Event, phase func(*Swundle) *Phase) {
	sw := s.Swundles[e.SwundleID]
	if sw == nil {
		return
	}
	p := phase(sw)
	switch e.Type {
	case InitStarted, SignStarted, SendStarted:
		*p = Phase{Started: true}
	case InitSuccess, SignSuccess, SendSuccess:
		*p = Phase{Success: true}
	case InitFailed, SignFailed, SendFailed:
		*p = Phase{Failed: true, Error: e.Error}
	}
}

// removeSwundle removes the swundle with its swaps, and any transactions
// no longer referenced by a swap.
func (s *State) removeSwundle(id string) {
	sw := s.Swundles[id]
	if sw == nil {
		return
	}
	delete(s.Swundles, id)
	for _, swapID := range sw.Swaps {
		delete(s.Swaps, swapID)
	}
	referenced := make(map[string]bool, len(s.Swaps))
	for _, swap := range s.Swaps {
		referenced[swap.TxID] = true
	}
	for txID := range s.Txs {
		if !referenced[txID] {
			delete(s.Txs, txID)
		}
	}
}

// swundleSwaps are the swundle's swaps, in order.
func (s *State) swundleSwaps(sw *Swundle) []*Swap {
	swaps := make([]*Swap, 0, len(sw.Swaps))
	for _, id := range sw.Swaps {
		if swap := s.Swaps[id]; swap != nil {
			swaps = append(swaps, swap)
		}
	}
	return swaps
}

// swapStatus is the status of the stored swap.
func (s *State) swapStatus(swap *Swap) Status {
	return SwapStatus(swap, s.Txs[swap.TxID])
}

// swundleStatus is the aggregate status of the swundle's swaps.
func (s *State) swundleStatus(sw *Swundle) StatusKind {
	swaps := s.swundleSwaps(sw)
	statuses := make([]Status, 0, len(swaps))
	for _, swap := range swaps {
		statuses = append(statuses, s.swapStatus(swap))
	}
	return SwundleStatus(statuses)
}

// sortedSwundles are the swundles, oldest first.
func (s *State) sortedSwundles() []*Swundle {
	swundles := make([]*Swundle, 0, len(s.Swundles))
	for _, sw := range s.Swundles {
		swundles = append(swundles, sw)
	}
	sort.Slice(swundles, func(i, j int) bool {
		if swundles[i].CreatedDate.Equal(swundles[j].CreatedDate) {
			return swundles[i].ID < swundles[j].ID
		}
		return swundles[i].CreatedDate.Before(swundles[j].CreatedDate)
	})
	return swundles
}

// latestSwundle is the most recently created swundle that has not been
// dismissed, or nil.
func (s *State) latestSwundle() *Swundle {
	swundles := s.sortedSwundles()
	for i := len(swundles) - 1; i >= 0; i-- {
		if !swundles[i].Dismissed {
			return swundles[i]
		}
	}
	return nil
}

// owner is the swundle containing the swap, or nil.
func (s *State) owner(swapID string) *Swundle {
	for _, sw := range s.Swundles {
		for _, id := range sw.Swaps {
			if id == swapID {
				return sw
			}
		}
	}
	return nil
}
