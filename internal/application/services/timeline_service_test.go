package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineService_PreviewsNextAttempt(t *testing.T) {
	client := &fakeClient{
		policy: referencePolicy(),
		timeline: journey.Timeline{
			Journey: attempted("j1"),
			Attempts: []journey.Attempt{
				{AttemptNo: 1, Status: journey.AttemptSent, CreatedAt: t0.Add(40 * time.Minute)},
				// a failed delivery does not advance the ladder
				{AttemptNo: 2, Status: journey.AttemptFailed, FailureReason: "bounced", CreatedAt: t0.Add(time.Hour)},
			},
		},
	}
	campaigns := NewCampaignService(client, nil, nil, nil)
	svc := NewTimelineService(client, campaigns, nil)
	svc.now = fixedClock

	view, err := svc.Timeline(context.Background(), "j1")
	require.NoError(t, err)

	assert.Equal(t, "j1", view.Journey.ID)
	assert.Equal(t, 2, view.FiredAttempts)
	require.NotNil(t, view.ReadyForListing)
	assert.True(t, *view.ReadyForListing)
	assert.False(t, view.ScheduleUnavailable)
	assert.Equal(t, journey.ReadinessWaiting, view.Readiness)

	require.NotNil(t, view.Next)
	assert.Equal(t, journey.ActionFire, view.Next.Action)
	assert.Equal(t, 2, view.Next.AttemptNo)
	require.NotNil(t, view.Next.DueAt)
	assert.Equal(t, t0.Add(40*time.Minute+6*time.Hour), *view.Next.DueAt)
	assert.Equal(t, 5, view.Next.DiscountPercent)
	assert.Equal(t, t0.Add(72*time.Hour), view.Next.ExpiresAt)
}

func TestTimelineService_TerminalJourney(t *testing.T) {
	j := attempted("j2")
	j.Status = journey.StatusRecovered
	client := &fakeClient{policy: referencePolicy(), timeline: journey.Timeline{Journey: j}}
	svc := NewTimelineService(client, NewCampaignService(client, nil, nil, nil), nil)
	svc.now = fixedClock

	view, err := svc.Timeline(context.Background(), "j2")
	require.NoError(t, err)
	assert.Equal(t, journey.ReadinessTerminal, view.Readiness)
	require.NotNil(t, view.Next)
	assert.Equal(t, journey.ActionNone, view.Next.Action)
}

func TestTimelineService_CampaignFailureKeepsHistory(t *testing.T) {
	client := &fakeClient{
		getErr: errors.New("campaign down"),
		timeline: journey.Timeline{
			Journey:  attempted("j3"),
			Attempts: []journey.Attempt{{AttemptNo: 1, Status: journey.AttemptSent, CreatedAt: t0}},
		},
	}
	svc := NewTimelineService(client, NewCampaignService(client, nil, nil, nil), nil)
	svc.now = fixedClock

	view, err := svc.Timeline(context.Background(), "j3")
	require.NoError(t, err)

	assert.Equal(t, "j3", view.Journey.ID)
	assert.Len(t, view.Attempts, 1)
	assert.Equal(t, 1, view.FiredAttempts)
	assert.True(t, view.ScheduleUnavailable)
	assert.Nil(t, view.Next)
	assert.Nil(t, view.ReadyForListing)
	assert.Empty(t, view.Readiness)
}
