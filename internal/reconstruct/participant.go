package reconstruct

import (
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/timeline"
	"github.com/goccy/go-json"
)

// resolveParticipants maps the call's channels to directory users. Each
// (user, role) pair appears once; answered and requested accumulate over
// the user's legs. When several users were rung in parallel and nobody
// picked up, only the originally requested one is kept, so an unanswered
// group call does not show up as missed for the whole group.
func (b *builder) resolveParticipants(
	callLog *calllog.CallLog,
	originator, source *timeline.Channel,
) []calllog.Participant {
	var participants []calllog.Participant

	if resolution := b.resolutions[source.UniqueID]; resolution != nil && resolution.UserUUID != "" {
		participants = append(participants, newParticipant(
			resolution,
			calllog.RoleSource,
			originator.Answered(),
			false,
		))
	}

	candidates := b.destinationCandidates(originator, source)

	anyAnswered := false

	for idx, channel := range candidates {
		resolution := b.resolutions[channel.UniqueID]
		if resolution == nil || resolution.UserUUID == "" {
			continue
		}

		if channel.Answered() {
			anyAnswered = true
		}

		participants = mergeParticipant(participants, newParticipant(
			resolution,
			calllog.RoleDestination,
			channel.Answered(),
			idx == 0,
		))
	}

	if !anyAnswered {
		participants = dropUnrequestedDestinations(participants)
	}

	return participants
}

func newParticipant(
	resolution *directory.Resolution,
	role string,
	answered, requested bool,
) calllog.Participant {
	participant := calllog.Participant{
		UserUUID:  resolution.UserUUID,
		LineID:    resolution.LineID,
		Role:      role,
		Answered:  answered,
		Requested: requested,
	}

	if len(resolution.Tags) > 0 {
		if tags, err := json.Marshal(resolution.Tags); err == nil {
			participant.Tags = tags
		}
	}

	return participant
}

// mergeParticipant folds a new leg into an existing (user, role) entry.
func mergeParticipant(
	participants []calllog.Participant,
	participant calllog.Participant,
) []calllog.Participant {
	for idx := range participants {
		existing := &participants[idx]

		if existing.UserUUID != participant.UserUUID || existing.Role != participant.Role {
			continue
		}

		existing.Answered = existing.Answered || participant.Answered
		existing.Requested = existing.Requested || participant.Requested

		return participants
	}

	return append(participants, participant)
}

// dropUnrequestedDestinations trims an unanswered parallel ring down to
// the requested user, falling back to the first destination when the
// requested channel did not resolve.
func dropUnrequestedDestinations(participants []calllog.Participant) []calllog.Participant {
	destinations := 0
	requested := false

	for _, participant := range participants {
		if participant.Role == calllog.RoleDestination {
			destinations++
			requested = requested || participant.Requested
		}
	}

	if destinations <= 1 {
		return participants
	}

	kept := participants[:0]
	seen := false

	for _, participant := range participants {
		if participant.Role != calllog.RoleDestination {
			kept = append(kept, participant)
			continue
		}

		keep := participant.Requested
		if !requested {
			keep = !seen
		}

		if keep {
			kept = append(kept, participant)
		}

		seen = true
	}

	return kept
}
