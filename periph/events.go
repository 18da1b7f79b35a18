package periph

import (
	"periphcode-go/bus"
)

// SlotEvent is the retained payload published on a slot's state topic.
type SlotEvent struct {
	Registry string `json:"registry"`
	ID       ID     `json:"id"`
	State    string `json:"state"` // "constructed" | "destroyed"
	Ready    bool   `json:"ready"`
	Config   any    `json:"config,omitempty"`
}

// StateTopic is the topic a registry named name publishes id's state on.
func StateTopic(name string, id ID) bus.Topic {
	return bus.T("periph", name, id.String(), "state")
}

// publish emits the slot's current state. Caller holds s.mu.
func (r *Registry[C]) publish(s *slot[C]) {
	if r.conn == nil {
		return
	}
	id := s.idx
	ev := SlotEvent{Registry: r.name, ID: id, State: s.state.String(), Ready: s.ready.Load()}
	if s.state == slotOccupied {
		ev.Config = s.inst.cfg
	}
	r.conn.Publish(&bus.Message{Topic: StateTopic(r.name, id), Payload: ev, Retained: true})
}
