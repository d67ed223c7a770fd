package reconstruct

import (
	"sort"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/timeline"
	"go.uber.org/zap"
)

// correlateRecordings pairs MIXMONITOR_START/STOP events into recording
// segments. Pairing is per channel and per mixmonitor id, so concurrent
// recordings on different channels stay independent. A start whose stop
// never arrived is closed at the channel's end; a start without payload
// carries nothing to identify the media and is skipped.
func correlateRecordings(t *timeline.Timeline) []calllog.Recording {
	var recordings []calllog.Recording

	for _, channel := range t.Channels {
		recordings = append(recordings, channelRecordings(channel)...)
	}

	sort.SliceStable(recordings, func(i, j int) bool {
		return recordings[i].StartTime.Before(recordings[j].StartTime)
	})

	return recordings
}

func channelRecordings(channel *timeline.Channel) []calllog.Recording {
	open := make(map[string]*calllog.Recording)

	var closed []calllog.Recording

	for _, event := range channel.Events {
		switch event.Row.EventType {
		case cel.EventMixMonitorStart:
			payload := event.Payload.MixMonitor
			if payload == nil || payload.MixMonitorID == "" {
				logging.Logger.Warn("recording start without usable payload, skipping",
					zap.String("channel", channel.Name),
					zap.String("linked_id", event.Row.LinkedID),
				)

				continue
			}

			recording := &calllog.Recording{
				MixMonitorID: payload.MixMonitorID,
				StartTime:    event.Row.EventTime,
			}

			if payload.Filename != "" {
				path := payload.Filename
				recording.Path = &path
			}

			open[payload.MixMonitorID] = recording

		case cel.EventMixMonitorStop:
			payload := event.Payload.MixMonitor
			if payload == nil {
				continue
			}

			recording, ok := open[payload.MixMonitorID]
			if !ok {
				continue
			}

			recording.EndTime = event.Row.EventTime
			closed = append(closed, *recording)
			delete(open, payload.MixMonitorID)
		}
	}

	if len(open) == 0 {
		return closed
	}

	// The channel died mid-recording; the recorder stops with it.
	end, ok := channel.EndTime()
	if !ok {
		end = channel.LastEventTime()
	}

	for _, recording := range open {
		recording.EndTime = end
		closed = append(closed, *recording)
	}

	return closed
}
