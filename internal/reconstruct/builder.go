package reconstruct

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/timeline"
	"go.uber.org/zap"
)

type builder struct {
	resolver LineResolver
	t        *timeline.Timeline

	// resolutions caches one directory lookup per channel; nil entries
	// are channels the directory does not know.
	resolutions map[string]*directory.Resolution
}

func newBuilder(resolver LineResolver, t *timeline.Timeline) *builder {
	return &builder{
		resolver:    resolver,
		t:           t,
		resolutions: make(map[string]*directory.Resolution),
	}
}

func (b *builder) build(ctx context.Context) (*calllog.CallLog, error) {
	originator := b.t.Originator()
	source := b.effective(originator)

	err := b.resolveChannels(ctx)
	if err != nil {
		return nil, err
	}

	callLog := &calllog.CallLog{
		Direction:      b.direction(),
		ConversationID: b.t.LinkedID,
	}

	b.applyTimestamps(callLog, originator)
	b.applySource(callLog, source)
	b.applyRequested(callLog, originator, source)
	b.applyDestination(callLog, originator, source)
	b.applyDestinationMarkers(callLog)
	b.applyUserField(callLog)

	callLog.Recordings = correlateRecordings(b.t)
	callLog.Participants = b.resolveParticipants(callLog, originator, source)

	if callLog.TenantUUID == "" {
		callLog.TenantUUID = b.anyTenant()
	}

	return callLog, nil
}

// effective unwraps local-channel pairs: whenever a ;1 leg and its ;2
// sibling are both present they are one logical hop, and the real
// endpoint signaling lives on the ;2 side.
func (b *builder) effective(channel *timeline.Channel) *timeline.Channel {
	if channel == nil || !channel.IsLocal() {
		return channel
	}

	counterpart := b.t.LocalCounterpart(channel)
	if counterpart == nil {
		return channel
	}

	if strings.HasSuffix(counterpart.Name, ";2") {
		return counterpart
	}

	return channel
}

func (b *builder) resolveChannels(ctx context.Context) error {
	for _, channel := range b.t.Channels {
		if channel.IsLocal() {
			continue
		}

		asOf := channel.StartTime()

		resolution, err := b.resolver.ResolveLine(ctx, cel.LineIdentity(channel.Name), asOf)
		if err != nil {
			if errors.Is(err, directory.ErrLineNotFound) {
				logging.Logger.Debug("channel has no directory match",
					zap.String("channel", channel.Name),
					zap.String("linked_id", b.t.LinkedID),
				)

				b.resolutions[channel.UniqueID] = nil

				continue
			}

			return err
		}

		b.resolutions[channel.UniqueID] = resolution
	}

	return nil
}

func (b *builder) direction() string {
	switch {
	case b.t.HasMarker(cel.EventXivoIncall):
		return calllog.DirectionInbound
	case b.t.HasMarker(cel.EventXivoOutcall):
		return calllog.DirectionOutbound
	default:
		return calllog.DirectionInternal
	}
}

// applyTimestamps sets date, date_answer and date_end. date_answer is
// the instant the originator channel first enters a bridge, not the
// ANSWER event, which may fire earlier on a different leg.
func (b *builder) applyTimestamps(callLog *calllog.CallLog, originator *timeline.Channel) {
	callLog.Date = b.earliestChanStart()

	if answered, ok := originator.FirstBridgeEnter(); ok {
		callLog.DateAnswer = &answered
	}

	end, ok := originator.EndTime()
	if !ok {
		end = b.t.Events[len(b.t.Events)-1].Row.EventTime
	}

	callLog.DateEnd = &end
}

func (b *builder) earliestChanStart() time.Time {
	for _, event := range b.t.Events {
		if event.Row.EventType == cel.EventChanStart {
			return event.Row.EventTime
		}
	}

	return b.t.Events[0].Row.EventTime
}

func (b *builder) applySource(callLog *calllog.CallLog, source *timeline.Channel) {
	first := source.FirstEvent().Row

	callLog.SourceName = first.CallerIDName
	callLog.SourceExten = first.CallerIDNum
	callLog.SourceLineIdentity = strings.ToLower(cel.LineIdentity(source.Name))

	resolution := b.resolutions[source.UniqueID]
	if resolution == nil {
		return
	}

	callLog.SourceInternalExten = resolution.Extension
	callLog.SourceInternalContext = resolution.Context
	callLog.TenantUUID = resolution.TenantUUID

	if resolution.UserUUID != "" {
		userUUID := resolution.UserUUID
		callLog.SourceUserUUID = &userUUID
		callLog.SourceInternalName = resolution.UserName
	}
}

// applyRequested records what was dialed before any forwarding; forward
// markers never overwrite these fields.
func (b *builder) applyRequested(callLog *calllog.CallLog, originator, source *timeline.Channel) {
	first := originator.FirstEvent().Row

	callLog.RequestedExten = first.Exten
	callLog.RequestedContext = first.Context

	// A call entering the dialplan at "s" carries the real dialed
	// extension on the XIVO_FROM_S marker instead.
	if first.Exten == "s" {
		for _, event := range b.t.Events {
			if event.Row.EventType == cel.EventXivoFromS {
				callLog.RequestedExten = event.Row.Exten
				callLog.RequestedContext = event.Row.Context

				break
			}
		}
	}

	requested := b.firstAttempted(originator, source)
	if requested == nil {
		return
	}

	if resolution := b.resolutions[requested.UniqueID]; resolution != nil {
		callLog.RequestedName = resolution.UserName
		callLog.RequestedInternalExten = resolution.Extension
		callLog.RequestedInternalContext = resolution.Context
	}
}

func (b *builder) applyDestination(callLog *calllog.CallLog, originator, source *timeline.Channel) {
	destination := b.destinationChannel(originator, source)
	if destination == nil {
		// Nothing was ever attempted beyond the source channel; the
		// dialed extension is all there is.
		callLog.DestinationExten = callLog.RequestedExten
		b.applyLastForward(callLog)

		return
	}

	first := destination.FirstEvent().Row

	callLog.DestinationName = first.CallerIDName
	callLog.DestinationExten = first.CallerIDNum
	callLog.DestinationLineIdentity = strings.ToLower(cel.LineIdentity(destination.Name))

	if resolution := b.resolutions[destination.UniqueID]; resolution != nil {
		callLog.DestinationInternalExten = resolution.Extension
		callLog.DestinationInternalContext = resolution.Context

		if resolution.UserUUID != "" {
			userUUID := resolution.UserUUID
			callLog.DestinationUserUUID = &userUUID

			if callLog.DestinationName == "" {
				callLog.DestinationName = resolution.UserName
			}
		}
	}

	if !destination.Answered() {
		b.applyLastForward(callLog)
	}
}

// applyLastForward points the destination at the last attempted forward
// target when no channel ever answered.
func (b *builder) applyLastForward(callLog *calllog.CallLog) {
	for idx := len(b.t.Events) - 1; idx >= 0; idx-- {
		event := b.t.Events[idx]

		if forward := event.Payload.Forward; forward != nil {
			if forward.Num != "" {
				callLog.DestinationExten = forward.Num
			}

			if forward.Name != "" {
				callLog.DestinationName = forward.Name
			}

			return
		}

		if missed := event.Payload.MissedCall; missed != nil {
			if missed.DestinationExten != "" {
				callLog.DestinationExten = missed.DestinationExten
			}

			if missed.DestinationName != "" {
				callLog.DestinationName = missed.DestinationName
			}

			if missed.DestinationUserUUID != "" {
				userUUID := missed.DestinationUserUUID
				callLog.DestinationUserUUID = &userUUID
			}

			return
		}
	}
}

// applyDestinationMarkers lets an explicit destination marker override
// the channel-derived destination; the last marker observed wins, and
// the winning marker also becomes the call log's destination detail
// rows.
func (b *builder) applyDestinationMarkers(callLog *calllog.CallLog) {
	var last *cel.DestinationPayload

	for _, event := range b.t.Events {
		if event.Payload.Destination != nil {
			last = event.Payload.Destination
		}
	}

	if last == nil {
		return
	}

	details := []calllog.Destination{{Key: "type", Value: last.Type}}

	appendDetail := func(key, value string) {
		if value != "" {
			details = append(details, calllog.Destination{Key: key, Value: value})
		}
	}

	switch last.Type {
	case cel.DestinationUser:
		if last.UserUUID != "" {
			userUUID := last.UserUUID
			callLog.DestinationUserUUID = &userUUID
		}

		if last.UserName != "" {
			callLog.DestinationName = last.UserName
		}

		appendDetail("user_uuid", last.UserUUID)
		appendDetail("user_name", last.UserName)

	case cel.DestinationMeeting:
		if last.MeetingName != "" {
			callLog.DestinationName = last.MeetingName
		}

		appendDetail("meeting_uuid", last.MeetingUUID)
		appendDetail("meeting_name", last.MeetingName)

	case cel.DestinationConference:
		if last.ConferenceName != "" {
			callLog.DestinationName = last.ConferenceName
		}

		appendDetail("conference_id", last.ConferenceID)
		appendDetail("conference_name", last.ConferenceName)

	case cel.DestinationQueue:
		if last.QueueName != "" {
			callLog.DestinationName = last.QueueName
		}

		appendDetail("queue_id", last.QueueID)
		appendDetail("queue_name", last.QueueName)

	case cel.DestinationGroup:
		if last.GroupName != "" {
			callLog.DestinationName = last.GroupName
		}

		appendDetail("group_id", last.GroupID)
		appendDetail("group_name", last.GroupName)

	default:
		return
	}

	callLog.Destinations = details
}

func (b *builder) applyUserField(callLog *calllog.CallLog) {
	for idx := len(b.t.Events) - 1; idx >= 0; idx-- {
		if userField := b.t.Events[idx].Row.UserField; userField != "" {
			callLog.UserField = userField
			return
		}
	}
}

// destinationChannel picks the channel the destination fields come from:
// the first candidate that answered, else the last attempted one.
func (b *builder) destinationChannel(originator, source *timeline.Channel) *timeline.Channel {
	var answered, last *timeline.Channel

	var answeredAt time.Time

	for _, channel := range b.destinationCandidates(originator, source) {
		last = channel

		enteredAt, ok := channel.FirstBridgeEnter()
		if !ok {
			continue
		}

		if answered == nil || enteredAt.Before(answeredAt) {
			answered = channel
			answeredAt = enteredAt
		}
	}

	if answered != nil {
		return answered
	}

	return last
}

// firstAttempted is the originally targeted channel, before forwarding.
func (b *builder) firstAttempted(originator, source *timeline.Channel) *timeline.Channel {
	candidates := b.destinationCandidates(originator, source)
	if len(candidates) == 0 {
		return nil
	}

	return candidates[0]
}

// destinationCandidates lists the non-local channels rung for the call,
// in start order, with local legs unwrapped to their real endpoints.
func (b *builder) destinationCandidates(originator, source *timeline.Channel) []*timeline.Channel {
	seen := map[string]bool{
		originator.UniqueID: true,
		source.UniqueID:     true,
	}

	var candidates []*timeline.Channel

	for _, channel := range b.t.Channels {
		effective := b.effective(channel)

		if effective.IsLocal() || seen[effective.UniqueID] {
			continue
		}

		seen[effective.UniqueID] = true
		candidates = append(candidates, effective)
	}

	return candidates
}

func (b *builder) anyTenant() string {
	for _, channel := range b.t.Channels {
		if resolution := b.resolutions[channel.UniqueID]; resolution != nil {
			return resolution.TenantUUID
		}
	}

	return ""
}
