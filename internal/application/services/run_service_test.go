package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/events"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunService_FailureChangesNothing(t *testing.T) {
	client := &fakeClient{runErr: errors.New("timeout")}
	pub := &recordingPublisher{}
	notifier := &fakeNotifier{enabled: true}
	svc := NewRunService(client, pub, notifier, 50, nil)

	_, err := svc.RunNow(context.Background(), 0)
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, []int{50}, client.runSizes)
	assert.Empty(t, pub.events)
	assert.Empty(t, notifier.reports)

	_, ok := svc.LastRun()
	assert.False(t, ok)
}

func TestRunService_SuccessPublishesAndReportsFailures(t *testing.T) {
	stats := recoveryapi.RunStats{Due: 5, Sent: 3, Failed: 2, FailedReasons: map[string]int{"bounced": 2}}
	client := &fakeClient{runResult: recoveryapi.RunResult{Stats: stats}}
	pub := &recordingPublisher{}
	notifier := &fakeNotifier{enabled: true}
	svc := NewRunService(client, pub, notifier, 50, nil)

	outcome, err := svc.RunNow(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, outcome.BatchSize)
	assert.True(t, outcome.Reported)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.RecoveryRunNow, pub.events[0].Name)
	var published recoveryapi.RunStats
	require.NoError(t, json.Unmarshal(pub.events[0].Data, &published))
	assert.Equal(t, stats, published)

	require.Len(t, notifier.reports, 1)
	assert.Equal(t, 2, notifier.reports[0].Stats.Failed)

	last, ok := svc.LastRun()
	require.True(t, ok)
	assert.Equal(t, outcome, last)
}

func TestRunService_CleanRunOrDisabledNotifierSendsNothing(t *testing.T) {
	client := &fakeClient{runResult: recoveryapi.RunResult{Stats: recoveryapi.RunStats{Due: 2, Sent: 2}}}
	notifier := &fakeNotifier{enabled: true}
	svc := NewRunService(client, nil, notifier, 50, nil)

	outcome, err := svc.RunNow(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, outcome.Reported)
	assert.Empty(t, notifier.reports)

	client.runResult.Stats.Failed = 1
	disabled := &fakeNotifier{}
	svc = NewRunService(client, nil, disabled, 50, nil)
	outcome, err = svc.RunNow(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, outcome.Reported)
	assert.Empty(t, disabled.reports)
}

func TestRunService_ReportFailureKeepsRunSuccessful(t *testing.T) {
	client := &fakeClient{runResult: recoveryapi.RunResult{Stats: recoveryapi.RunStats{Due: 1, Failed: 1}}}
	notifier := &fakeNotifier{enabled: true, err: errors.New("resend: 429")}
	svc := NewRunService(client, nil, notifier, 50, nil)

	outcome, err := svc.RunNow(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, outcome.Reported)
	assert.Len(t, notifier.reports, 1)
}
