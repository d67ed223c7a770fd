// Package timeline turns the unordered CEL rows of one correlation key
// into per-channel event timelines with an explicit parent/child
// relation between channels. The structure lives for one reconstruction
// and is discarded once the call log is emitted.
package timeline

import (
	"sort"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
)

// Event is one CEL row with its extra payload decoded exactly once.
type Event struct {
	Row     cel.CEL
	Payload cel.Payload
}

// Channel is the named timeline of one unique id.
type Channel struct {
	UniqueID string
	Name     string
	Events   []Event

	// Parent is the channel that caused this one to be created, inferred
	// from peer hints, shared bridge ids and temporal adjacency; nil for
	// the originator.
	Parent *Channel
}

// Timeline is the ordered view over one correlation set.
type Timeline struct {
	LinkedID string
	Events   []Event
	Channels []*Channel

	byUniqueID map[string]*Channel
	byName     map[string]*Channel
}

// Build sorts the rows by event time, breaking ties by unique id and
// then insertion order; channel ids are not guaranteed to sort
// chronologically as text. The sorted rows are grouped into channels.
func Build(rows []cel.CEL) *Timeline {
	events := make([]Event, len(rows))
	for idx, row := range rows {
		events[idx] = Event{Row: row, Payload: cel.DecodePayload(&rows[idx])}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Row.EventTime.Equal(events[j].Row.EventTime) {
			return events[i].Row.EventTime.Before(events[j].Row.EventTime)
		}

		return events[i].Row.UniqueID < events[j].Row.UniqueID
	})

	t := &Timeline{
		Events:     events,
		byUniqueID: make(map[string]*Channel),
		byName:     make(map[string]*Channel),
	}

	for _, event := range events {
		if t.LinkedID == "" {
			t.LinkedID = event.Row.LinkedID
		}

		channel, ok := t.byUniqueID[event.Row.UniqueID]
		if !ok {
			channel = &Channel{
				UniqueID: event.Row.UniqueID,
				Name:     event.Row.ChannelName,
			}
			t.byUniqueID[event.Row.UniqueID] = channel
			t.byName[channel.Name] = channel
			t.Channels = append(t.Channels, channel)
		}

		channel.Events = append(channel.Events, event)
	}

	t.linkParents()

	return t
}

// HasTerminalMarker reports whether the set is complete: the switch
// emits LINKEDID_END once the last channel of the call is gone.
func (t *Timeline) HasTerminalMarker() bool {
	for _, event := range t.Events {
		if event.Row.EventType == cel.EventLinkedIDEnd {
			return true
		}
	}

	return false
}

// ChannelByUniqueID returns the channel owning the given unique id.
func (t *Timeline) ChannelByUniqueID(uniqueID string) *Channel {
	return t.byUniqueID[uniqueID]
}

// LocalCounterpart returns the sibling leg of a local channel, when both
// legs appear in the set.
func (t *Timeline) LocalCounterpart(channel *Channel) *Channel {
	name, ok := cel.LocalLegCounterpart(channel.Name)
	if !ok {
		return nil
	}

	return t.byName[name]
}

// Originator returns the channel that initiated the call: earliest
// CHAN_START, preferring a non-local channel when starts coincide.
func (t *Timeline) Originator() *Channel {
	var originator *Channel

	for _, channel := range t.Channels {
		if originator == nil {
			originator = channel
			continue
		}

		candidate := channel.StartTime()
		current := originator.StartTime()

		if candidate.Before(current) {
			originator = channel
			continue
		}

		if candidate.Equal(current) && originator.IsLocal() && !channel.IsLocal() {
			originator = channel
		}
	}

	return originator
}

// HasMarker reports whether any row in the set carries the event type.
func (t *Timeline) HasMarker(eventType string) bool {
	for _, event := range t.Events {
		if event.Row.EventType == eventType {
			return true
		}
	}

	return false
}

// linkParents infers who started whom. The creator of a channel is the
// channel that was dialing when it appeared: an earlier channel naming
// it as peer, or failing that the channel with the most recent APP_START
// before its CHAN_START, or the originator.
func (t *Timeline) linkParents() {
	if len(t.Channels) < 2 {
		return
	}

	originator := t.Originator()

	for _, channel := range t.Channels {
		if channel == originator {
			continue
		}

		channel.Parent = t.findParent(channel, originator)
	}
}

func (t *Timeline) findParent(channel *Channel, originator *Channel) *Channel {
	start := channel.StartTime()

	if parent := t.peerOf(channel, start); parent != nil {
		return parent
	}

	var best *Channel

	var bestTime time.Time

	for _, candidate := range t.Channels {
		if candidate == channel || candidate.StartTime().After(start) {
			continue
		}

		for _, event := range candidate.Events {
			if event.Row.EventType != cel.EventAppStart || event.Row.EventTime.After(start) {
				continue
			}

			if best == nil || event.Row.EventTime.After(bestTime) {
				best = candidate
				bestTime = event.Row.EventTime
			}
		}
	}

	if best != nil {
		return best
	}

	return originator
}

func (t *Timeline) peerOf(channel *Channel, notAfter time.Time) *Channel {
	for _, candidate := range t.Channels {
		if candidate == channel {
			continue
		}

		for _, event := range candidate.Events {
			if event.Row.EventTime.After(notAfter) {
				break
			}

			if event.Row.Peer == channel.Name {
				return candidate
			}
		}
	}

	for _, event := range channel.Events {
		if event.Row.Peer == "" {
			continue
		}

		if peer, ok := t.byName[event.Row.Peer]; ok && !peer.StartTime().After(notAfter) {
			return peer
		}
	}

	return nil
}

// StartTime is the channel's CHAN_START instant, falling back to its
// first event.
func (c *Channel) StartTime() time.Time {
	for _, event := range c.Events {
		if event.Row.EventType == cel.EventChanStart {
			return event.Row.EventTime
		}
	}

	return c.Events[0].Row.EventTime
}

// EndTime is the channel's last HANGUP/CHAN_END, with ok=false when the
// channel never terminated inside the set.
func (c *Channel) EndTime() (time.Time, bool) {
	var end time.Time

	var found bool

	for _, event := range c.Events {
		if event.Row.IsChannelEnd() {
			end = event.Row.EventTime
			found = true
		}
	}

	return end, found
}

// FirstBridgeEnter returns the instant the channel first entered a
// bridge, with ok=false when it never did.
func (c *Channel) FirstBridgeEnter() (time.Time, bool) {
	for _, event := range c.Events {
		if event.Row.IsBridgeEnter() {
			return event.Row.EventTime, true
		}
	}

	return time.Time{}, false
}

// Answered reports whether the channel was ever seen in a bridge.
func (c *Channel) Answered() bool {
	_, ok := c.FirstBridgeEnter()
	return ok
}

// IsLocal reports whether the channel is one leg of a local pair.
func (c *Channel) IsLocal() bool {
	return cel.IsLocalLeg(c.Name)
}

// FirstEvent returns the channel's chronologically first row.
func (c *Channel) FirstEvent() Event {
	return c.Events[0]
}

// LastEventTime is the time of the channel's final row.
func (c *Channel) LastEventTime() time.Time {
	return c.Events[len(c.Events)-1].Row.EventTime
}
