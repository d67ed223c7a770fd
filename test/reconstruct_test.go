package test

import (
	"context"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/calllog"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/cel"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/directory"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/interval"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/lock"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/reconstruct"
	"git.mci.dev/mse/sre/phoenix/golang/ahsoka/internal/stats"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testTenantUUID = "00000000-0000-4000-8000-000000000001"
	aliceUUID      = "00000000-0000-4000-8000-0000000000aa"
	bobUUID        = "00000000-0000-4000-8000-0000000000bb"
)

func TestReconstructPipeline(t *testing.T) {
	td := setupDatabase(t)
	defer td.cleanup(t)

	ctx := context.Background()
	callStart := seedDirectory(t, td.DB)

	linkedID := "1700000000.1"
	seedAnsweredCall(t, td.DB, linkedID, callStart)

	service := reconstruct.NewService(td.DB)

	callLog, consumed, err := service.Generate(ctx, linkedID)
	require.NoError(t, err)
	require.NotNil(t, callLog)
	require.Equal(t, 11, consumed)

	require.Equal(t, calllog.DirectionInternal, callLog.Direction)
	require.Equal(t, linkedID, callLog.ConversationID)
	require.NotNil(t, callLog.DateAnswer)
	require.Equal(t, "1001", callLog.SourceExten)
	require.Equal(t, "1002", callLog.RequestedExten)
	require.Len(t, callLog.Participants, 2)

	var persisted calllog.CallLog
	require.NoError(t, td.DB.WithContext(ctx).
		Preload("Participants").
		Where("uuid = ?", callLog.UUID).
		First(&persisted).Error)
	require.Len(t, persisted.Participants, 2)

	var unmarked int64
	require.NoError(t, td.DB.WithContext(ctx).
		Model(&cel.CEL{}).
		Where("linkedid = ? AND call_log_id IS NULL", linkedID).
		Count(&unmarked).Error)
	require.Zero(t, unmarked)

	// A second pass over the same key finds nothing left.
	_, _, err = service.Generate(ctx, linkedID)
	require.ErrorIs(t, err, reconstruct.ErrNothingToProcess)
}

func TestBatchDefersIncompleteSets(t *testing.T) {
	td := setupDatabase(t)
	defer td.cleanup(t)

	ctx := context.Background()
	callStart := seedDirectory(t, td.DB)

	seedAnsweredCall(t, td.DB, "1700000100.1", callStart)

	// An in-flight call: rows present but no LINKEDID_END yet.
	openRows := []cel.CEL{
		celRow("1700000200.1", cel.EventChanStart, "PJSIP/alice-2", "1700000200.1", callStart),
		celRow("1700000200.1", cel.EventAnswer, "PJSIP/alice-2", "1700000200.1", callStart.Add(time.Second)),
	}
	require.NoError(t, td.DB.Create(&openRows).Error)

	service := reconstruct.NewService(td.DB)

	result, err := service.GenerateFromCelBatch(ctx, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, result.CallLogsCreated)
	require.Equal(t, 11, result.RowsConsumed)
	require.Equal(t, 1, result.Deferred)

	// The deferred rows stay unprocessed for the next run.
	var pending int64
	require.NoError(t, td.DB.WithContext(ctx).
		Model(&cel.CEL{}).
		Where("linkedid = ? AND call_log_id IS NULL", "1700000200.1").
		Count(&pending).Error)
	require.Equal(t, int64(2), pending)
}

func TestAdvisoryLockMutualExclusion(t *testing.T) {
	td := setupDatabase(t)
	defer td.cleanup(t)

	ctx := context.Background()

	first := lock.New(lock.ReconstructLockKey)
	require.NoError(t, first.Acquire(ctx, td.DB))

	second := lock.New(lock.ReconstructLockKey)
	require.ErrorIs(t, second.Acquire(ctx, td.DB), lock.ErrAlreadyHeld)

	require.NoError(t, first.Release(ctx))

	require.NoError(t, second.Acquire(ctx, td.DB))
	require.NoError(t, second.Release(ctx))
}

func TestAgentStatisticsOverDatabase(t *testing.T) {
	td := setupDatabase(t)
	defer td.cleanup(t)

	ctx := context.Background()

	agent := stats.StatAgent{Name: "Agent/1001", TenantUUID: testTenantUUID, AgentID: 42}
	require.NoError(t, td.DB.Create(&agent).Error)

	day := time.Date(2020, 10, 6, 0, 0, 0, 0, time.UTC)

	periodic := []stats.AgentPeriodic{
		{StatAgentID: agent.ID, Time: day.Add(4 * time.Hour), LoginTime: 3600},
		{StatAgentID: agent.ID, Time: day.Add(5 * time.Hour), LoginTime: 3600, PauseTime: 300},
	}
	require.NoError(t, td.DB.Create(&periodic).Error)

	until := day.AddDate(0, 0, 1)
	agentID := uint64(42)

	items, err := stats.NewService(td.DB).GetAgentInterval(ctx, stats.AgentRequest{
		Request: stats.Request{
			TenantUUIDs: []string{testTenantUUID},
			From:        &day,
			Until:       &until,
			Interval:    interval.IntervalHour,
		},
		AgentID: &agentID,
	})
	require.NoError(t, err)
	require.Len(t, items, 25)

	require.Equal(t, int64(3600), items[4].LoginTime)
	require.Equal(t, int64(300), items[5].PauseTime)
	require.True(t, items[24].IsTotal)
	require.Equal(t, int64(7200), items[24].LoginTime)

	unknownID := uint64(999)

	_, err = stats.NewService(td.DB).GetAgentInterval(ctx, stats.AgentRequest{
		Request: stats.Request{TenantUUIDs: []string{testTenantUUID}, From: &day, Until: &until},
		AgentID: &unknownID,
	})
	require.ErrorIs(t, err, stats.ErrNotFound)
}

func TestQueueStatisticsOverDatabase(t *testing.T) {
	td := setupDatabase(t)
	defer td.cleanup(t)

	ctx := context.Background()

	queue := stats.StatQueue{Name: "support", TenantUUID: testTenantUUID, QueueID: 7}
	require.NoError(t, td.DB.Create(&queue).Error)

	day := time.Date(2020, 10, 6, 0, 0, 0, 0, time.UTC)

	periodic := []stats.QueuePeriodic{
		{StatQueueID: queue.ID, Time: day.Add(9 * time.Hour), Total: 10, Answered: 6, Abandoned: 2},
	}
	require.NoError(t, td.DB.Create(&periodic).Error)

	calls := []stats.CallOnQueue{
		{StatQueueID: queue.ID, CallID: "c1", Time: day.Add(9 * time.Hour), Status: stats.CallStatusAnswered, WaitTime: 20},
		{StatQueueID: queue.ID, CallID: "c2", Time: day.Add(9 * time.Hour), Status: stats.CallStatusAnswered, WaitTime: 5},
		{StatQueueID: queue.ID, CallID: "c3", Time: day.Add(9 * time.Hour), Status: stats.CallStatusAbandoned, WaitTime: 2},
	}
	require.NoError(t, td.DB.Create(&calls).Error)

	until := day.AddDate(0, 0, 1)
	queueID := uint64(7)
	threshold := int64(10)

	items, err := stats.NewService(td.DB).GetQueueInterval(ctx, stats.QueueRequest{
		Request: stats.Request{
			TenantUUIDs: []string{testTenantUUID},
			From:        &day,
			Until:       &until,
			Interval:    interval.IntervalNone,
		},
		QueueID:       &queueID,
		QoSThreshold:  &threshold,
		QoSThresholds: []int64{5, 10, 15, 20, 30},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	total := items[0]
	require.True(t, total.IsTotal)
	require.Equal(t, int64(10), total.Total)
	require.NotNil(t, total.AnsweredRate)
	require.InDelta(t, 60.0, *total.AnsweredRate, 0.001)
	require.NotNil(t, total.QualityOfService)
	require.InDelta(t, 50.0, *total.QualityOfService, 0.001)
	require.Len(t, total.QualityOfServiceBins, 6)
	require.Equal(t, int64(1), total.QualityOfServiceBins[0].Abandoned)
}

// seedDirectory creates the tenant, users and lines every call scenario
// resolves against, and returns an event-time base the lines already
// existed at.
func seedDirectory(t *testing.T, db *gorm.DB) time.Time {
	t.Helper()

	require.NoError(t, db.Create(&directory.Tenant{UUID: testTenantUUID}).Error)

	users := []directory.User{
		{UUID: aliceUUID, TenantUUID: testTenantUUID, Firstname: "Alice", Lastname: "Doe", UserField: "support"},
		{UUID: bobUUID, TenantUUID: testTenantUUID, Firstname: "Bob", Lastname: "Dole"},
	}
	require.NoError(t, db.Create(&users).Error)

	lineStart := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second)

	alice := aliceUUID
	bob := bobUUID

	lines := []directory.Line{
		{UserUUID: &alice, TenantUUID: testTenantUUID, Identity: "pjsip/alice", Context: "internal", Extension: "1001", CreatedAt: lineStart},
		{UserUUID: &bob, TenantUUID: testTenantUUID, Identity: "pjsip/bob", Context: "internal", Extension: "1002", CreatedAt: lineStart},
	}
	require.NoError(t, db.Create(&lines).Error)

	return lineStart.Add(time.Hour)
}

// seedAnsweredCall writes the CEL set of an answered internal call from
// alice to bob, terminal marker included.
func seedAnsweredCall(t *testing.T, db *gorm.DB, linkedID string, start time.Time) {
	t.Helper()

	calleeUID := linkedID + "0"

	rows := []cel.CEL{
		celRow(linkedID, cel.EventChanStart, "PJSIP/alice-1", linkedID, start),
		celRow(linkedID, cel.EventAppStart, "PJSIP/alice-1", linkedID, start.Add(time.Second)),
		celRow(linkedID, cel.EventChanStart, "PJSIP/bob-2", calleeUID, start.Add(time.Second)),
		celRow(linkedID, cel.EventAnswer, "PJSIP/bob-2", calleeUID, start.Add(3*time.Second)),
		celRow(linkedID, cel.EventBridgeEnter, "PJSIP/alice-1", linkedID, start.Add(3*time.Second)),
		celRow(linkedID, cel.EventBridgeEnter, "PJSIP/bob-2", calleeUID, start.Add(3*time.Second)),
		celRow(linkedID, cel.EventHangup, "PJSIP/bob-2", calleeUID, start.Add(5*time.Second)),
		celRow(linkedID, cel.EventChanEnd, "PJSIP/bob-2", calleeUID, start.Add(5*time.Second)),
		celRow(linkedID, cel.EventHangup, "PJSIP/alice-1", linkedID, start.Add(5*time.Second)),
		celRow(linkedID, cel.EventChanEnd, "PJSIP/alice-1", linkedID, start.Add(5*time.Second)),
		celRow(linkedID, cel.EventLinkedIDEnd, "PJSIP/alice-1", linkedID, start.Add(5*time.Second)),
	}

	require.NoError(t, db.Create(&rows).Error)
}

func celRow(linkedID, eventType, channel, uniqueID string, at time.Time) cel.CEL {
	row := cel.CEL{
		EventType:   eventType,
		EventTime:   at,
		ChannelName: channel,
		UniqueID:    uniqueID,
		LinkedID:    linkedID,
	}

	if eventType == cel.EventChanStart {
		switch {
		case channel == "PJSIP/alice-1" || channel == "PJSIP/alice-2":
			row.CallerIDName = "Alice"
			row.CallerIDNum = "1001"
			row.Exten = "1002"
			row.Context = "internal"
		case channel == "PJSIP/bob-2":
			row.CallerIDName = "Bob"
			row.CallerIDNum = "1002"
		}
	}

	return row
}
