// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import "time"

// EventType identifies an Event.
type EventType string

const (
	SwundleAdded     EventType = "swundle_added"
	SwundleRemoved   EventType = "swundle_removed"
	SwundleDismissed EventType = "swundle_dismissed"
	SwapsUpdated     EventType = "swaps_updated"
	TxUpdated        EventType = "tx_updated"
	InitStarted      EventType = "init_started"
	InitSuccess      EventType = "init_success"
	InitFailed       EventType = "init_failed"
	SignStarted      EventType = "sign_started"
	SignSuccess      EventType = "sign_success"
	SignFailed       EventType = "sign_failed"
	SendStarted      EventType = "send_started"
	SendSuccess      EventType = "send_success"
	SendFailed       EventType = "send_failed"
)

// Event is a change to the swap state. Every mutation of the state is an
// Event applied by the reducer, and every Event is delivered to subscribers.
// Records carried by an Event replace the stored records with the same ID.
type Event struct {
	Type      EventType      `json:"type"`
	SwundleID string         `json:"swundleId,omitempty"`
	Swundle   *Swundle       `json:"swundle,omitempty"`
	Swaps     []*Swap        `json:"swaps,omitempty"`
	Txs       []*Transaction `json:"txs,omitempty"`
	Error     string         `json:"error,omitempty"`
	Stamp     time.Time      `json:"stamp"`
}

// snapshot copies the event and its records. The creator of an event keeps
// editing its records after dispatch, while subscribers read the published
// copy.
func (e *Event) snapshot() *Event {
	c := *e
	if e.Swundle != nil {
		c.Swundle = e.Swundle.copy()
	}
	if len(e.Swaps) > 0 {
		c.Swaps = make([]*Swap, 0, len(e.Swaps))
		for _, swap := range e.Swaps {
			c.Swaps = append(c.Swaps, swap.copy())
		}
	}
	if len(e.Txs) > 0 {
		c.Txs = make([]*Transaction, 0, len(e.Txs))
		for _, tx := range e.Txs {
			c.Txs = append(c.Txs, tx.copy())
		}
	}
	return &c
}

// phaseEvent returns the lifecycle event of the swundle. A non-nil err is
// carried by Failed events.
func phaseEvent(t EventType, swundleID string, err error) *Event {
	e := &Event{Type: t, SwundleID: swundleID}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func swapsEvent(swaps ...*Swap) *Event {
	return &Event{Type: SwapsUpdated, Swaps: swaps}
}

func txEvent(txs ...*Transaction) *Event {
	return &Event{Type: TxUpdated, Txs: txs}
}
