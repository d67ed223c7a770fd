// ahsoka-stats queries aggregated agent or queue statistics and prints
// them as JSON, one item per interval bucket plus the total row.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/interval"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/stats"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	kind := flag.String("kind", "queue", "statistics to query: agent or queue")
	tenants := flag.String("tenants", "", "comma separated tenant uuids")
	fromFlag := flag.String("from", "", "range start (RFC3339 or YYYY-MM-DD)")
	untilFlag := flag.String("until", "", "range end (RFC3339 or YYYY-MM-DD)")
	intervalFlag := flag.String("interval", interval.IntervalNone, "bucket size: none, hour, day or month")
	timezone := flag.String("timezone", "UTC", "IANA timezone the buckets are computed in")
	dayStart := flag.String("day-start", "", "only count rows from this local time of day (HH:MM)")
	dayEnd := flag.String("day-end", "", "only count rows before this local time of day (HH:MM)")
	weekDays := flag.String("week-days", "", "only count rows on these weekdays (comma separated, 0=Sunday)")
	agentID := flag.Uint64("agent-id", 0, "restrict to one agent")
	queueID := flag.Uint64("queue-id", 0, "restrict to one queue")
	qos := flag.Int64("qos", 0, "answered-within-threshold quality of service, in seconds")
	qosThresholds := flag.String("qos-thresholds", "", "histogram thresholds in seconds, comma separated")
	flag.Parse()

	circuitbreak.Init()

	go func() {
		for service := range circuitbreak.CircuitBreakChan {
			logging.Logger.Error("circuit breaker opened during query", zap.String("service", service))
		}
	}()

	request, err := buildRequest(*tenants, *fromFlag, *untilFlag, *intervalFlag, *timezone, *dayStart, *dayEnd, *weekDays)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("failed to connect to database", zap.String("error", err.Error()))
		return 1
	}

	service := stats.NewService(dbConn)
	ctx := context.Background()

	var result any

	switch *kind {
	case "agent":
		agentRequest := stats.AgentRequest{Request: request}
		if *agentID != 0 {
			agentRequest.AgentID = agentID
		}

		result, err = service.GetAgentInterval(ctx, agentRequest)
	case "queue":
		queueRequest := stats.QueueRequest{Request: request}
		if *queueID != 0 {
			queueRequest.QueueID = queueID
		}

		if *qos != 0 {
			queueRequest.QoSThreshold = qos
		}

		queueRequest.QoSThresholds, err = parseThresholds(*qosThresholds)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		result, err = service.GetQueueInterval(ctx, queueRequest)
	default:
		fmt.Fprintf(os.Stderr, "unknown kind %q, expected agent or queue\n", *kind)
		return 1
	}

	if err != nil {
		logging.Logger.Error("statistics query failed",
			zap.String("kind", *kind),
			zap.String("error", err.Error()),
		)

		return 1
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logging.Logger.Error("failed to encode result", zap.String("error", err.Error()))
		return 1
	}

	fmt.Println(string(output))

	return 0
}

func buildRequest(
	tenants, fromFlag, untilFlag, intervalFlag, timezone, dayStart, dayEnd, weekDays string,
) (stats.Request, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return stats.Request{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	request := stats.Request{
		Interval: intervalFlag,
		Timezone: location,
	}

	if tenants != "" {
		request.TenantUUIDs = strings.Split(tenants, ",")
	}

	request.From, err = parseInstant(fromFlag, location)
	if err != nil {
		return stats.Request{}, err
	}

	request.Until, err = parseInstant(untilFlag, location)
	if err != nil {
		return stats.Request{}, err
	}

	if dayStart != "" {
		tod, err := interval.ParseTimeOfDay(dayStart)
		if err != nil {
			return stats.Request{}, err
		}

		request.DayStart = &tod
	}

	if dayEnd != "" {
		tod, err := interval.ParseTimeOfDay(dayEnd)
		if err != nil {
			return stats.Request{}, err
		}

		request.DayEnd = &tod
	}

	request.WeekDays, err = parseWeekDays(weekDays)
	if err != nil {
		return stats.Request{}, err
	}

	return request, nil
}

func parseInstant(value string, location *time.Location) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	instant, err := time.ParseInLocation(time.RFC3339, value, location)
	if err != nil {
		instant, err = time.ParseInLocation("2006-01-02", value, location)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q, expected RFC3339 or YYYY-MM-DD", value)
		}
	}

	return &instant, nil
}

func parseWeekDays(value string) ([]time.Weekday, error) {
	if value == "" {
		return nil, nil
	}

	var days []time.Weekday

	for _, field := range strings.Split(value, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || day < 0 || day > 6 {
			return nil, fmt.Errorf("invalid weekday %q, expected 0 through 6", field)
		}

		days = append(days, time.Weekday(day))
	}

	return days, nil
}

func parseThresholds(value string) ([]int64, error) {
	if value == "" {
		return nil, nil
	}

	var thresholds []int64

	for _, field := range strings.Split(value, ",") {
		threshold, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil || threshold <= 0 {
			return nil, fmt.Errorf("invalid threshold %q, expected a positive integer", field)
		}

		thresholds = append(thresholds, threshold)
	}

	return thresholds, nil
}
