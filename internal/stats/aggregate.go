package stats

import (
	"math"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/interval"
)

// AgentStatItem is one aggregated bucket of agent activity. Durations
// are seconds.
type AgentStatItem struct {
	From       time.Time `json:"from"`
	Until      time.Time `json:"until"`
	IsTotal    bool      `json:"is_total"`
	LoginTime  int64     `json:"login_time"`
	PauseTime  int64     `json:"pause_time"`
	WrapupTime int64     `json:"wrapup_time"`
}

// QoSBin is one histogram bin [Min, Max); Max is nil on the unbounded
// last bin.
type QoSBin struct {
	Min       int64  `json:"min"`
	Max       *int64 `json:"max"`
	Answered  int64  `json:"answered"`
	Abandoned int64  `json:"abandoned"`
}

// QueueStatItem is one aggregated bucket of queue counters with its
// derived metrics. Pointer fields are nil when their denominator was
// zero.
type QueueStatItem struct {
	From    time.Time `json:"from"`
	Until   time.Time `json:"until"`
	IsTotal bool      `json:"is_total"`

	Total          int64 `json:"total"`
	Answered       int64 `json:"answered"`
	Abandoned      int64 `json:"abandoned"`
	Closed         int64 `json:"closed"`
	Full           int64 `json:"full"`
	JoinEmpty      int64 `json:"joinempty"`
	LeaveEmpty     int64 `json:"leaveempty"`
	Timeout        int64 `json:"timeout"`
	DivertCARatio  int64 `json:"divert_ca_ratio"`
	DivertWaittime int64 `json:"divert_waittime"`

	Blocking  int64 `json:"blocking"`
	Saturated int64 `json:"saturated"`

	AnsweredRate         *float64 `json:"answered_rate"`
	AverageWaitingTime   *float64 `json:"average_waiting_time"`
	QualityOfService     *float64 `json:"quality_of_service"`
	QualityOfServiceBins []QoSBin `json:"quality_of_service_bins,omitempty"`
}

func aggregateAgent(bucket interval.Bucket, rows []AgentPeriodic, opts interval.Options) AgentStatItem {
	item := AgentStatItem{From: bucket.From, Until: bucket.Until, IsTotal: bucket.Total}

	for _, row := range rows {
		if !rowInBucket(row.Time, bucket, opts) {
			continue
		}

		item.LoginTime += row.LoginTime
		item.PauseTime += row.PauseTime
		item.WrapupTime += row.WrapupTime
	}

	return item
}

func aggregateQueue(
	bucket interval.Bucket,
	periodic []QueuePeriodic,
	calls []CallOnQueue,
	opts interval.Options,
	qosThreshold *int64,
	qosThresholds []int64,
) QueueStatItem {
	item := QueueStatItem{From: bucket.From, Until: bucket.Until, IsTotal: bucket.Total}

	for _, row := range periodic {
		if !rowInBucket(row.Time, bucket, opts) {
			continue
		}

		item.Total += row.Total
		item.Answered += row.Answered
		item.Abandoned += row.Abandoned
		item.Closed += row.Closed
		item.Full += row.Full
		item.JoinEmpty += row.JoinEmpty
		item.LeaveEmpty += row.LeaveEmpty
		item.Timeout += row.Timeout
		item.DivertCARatio += row.DivertCARatio
		item.DivertWaittime += row.DivertWaittime
	}

	item.Blocking = item.LeaveEmpty + item.JoinEmpty
	item.Saturated = item.Full + item.DivertCARatio + item.DivertWaittime

	if item.Total > 0 {
		item.AnsweredRate = round2(100 * float64(item.Answered) / float64(item.Total))
	}

	var bucketCalls []CallOnQueue

	for _, call := range calls {
		if rowInBucket(call.Time, bucket, opts) {
			bucketCalls = append(bucketCalls, call)
		}
	}

	item.AverageWaitingTime = averageWaitingTime(bucketCalls)

	if qosThreshold != nil {
		item.QualityOfService = qualityOfService(bucketCalls, *qosThreshold)
	}

	if len(qosThresholds) > 0 {
		item.QualityOfServiceBins = qosHistogram(bucketCalls, qosThresholds)
	}

	return item
}

// averageWaitingTime averages waittime over the calls that actually
// waited: answered, abandoned and timed-out ones.
func averageWaitingTime(calls []CallOnQueue) *float64 {
	var sum, count int64

	for _, call := range calls {
		switch call.Status {
		case CallStatusAnswered, CallStatusAbandoned, CallStatusTimeout:
			sum += call.WaitTime
			count++
		}
	}

	if count == 0 {
		return nil
	}

	return round2(float64(sum) / float64(count))
}

// qualityOfService is the share of answered calls picked up within the
// threshold.
func qualityOfService(calls []CallOnQueue, threshold int64) *float64 {
	var answered, within int64

	for _, call := range calls {
		if call.Status != CallStatusAnswered {
			continue
		}

		answered++

		if call.WaitTime <= threshold {
			within++
		}
	}

	if answered == 0 {
		return nil
	}

	return round2(100 * float64(within) / float64(answered))
}

// qosHistogram bins answered and abandoned calls by waittime into
// [0,t1), [t1,t2), ..., [tn,inf).
func qosHistogram(calls []CallOnQueue, thresholds []int64) []QoSBin {
	bins := make([]QoSBin, 0, len(thresholds)+1)

	var low int64

	for idx := range thresholds {
		upper := thresholds[idx]
		bins = append(bins, QoSBin{Min: low, Max: &upper})
		low = thresholds[idx]
	}

	bins = append(bins, QoSBin{Min: low})

	for _, call := range calls {
		if call.Status != CallStatusAnswered && call.Status != CallStatusAbandoned {
			continue
		}

		for idx := range bins {
			bin := &bins[idx]

			if call.WaitTime < bin.Min {
				continue
			}

			if bin.Max != nil && call.WaitTime >= *bin.Max {
				continue
			}

			if call.Status == CallStatusAnswered {
				bin.Answered++
			} else {
				bin.Abandoned++
			}

			break
		}
	}

	return bins
}

func rowInBucket(instant time.Time, bucket interval.Bucket, opts interval.Options) bool {
	if instant.Before(bucket.From) || !instant.Before(bucket.Until) {
		return false
	}

	return opts.IncludesInstant(instant)
}

func round2(value float64) *float64 {
	rounded := math.Round(value*100) / 100
	return &rounded
}
