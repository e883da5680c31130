package services

import (
	"context"
	"errors"
	"testing"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignService_InvalidFormNeverReachesRemote(t *testing.T) {
	client := &fakeClient{policy: referencePolicy()}
	svc := NewCampaignService(client, &fakeAuditor{}, nil, nil)

	raw := campaign.RawFromPolicy(referencePolicy())
	raw.MaxAttempts = "abc"
	raw.AttemptDelaysMinutes = "30,x"

	result, err := svc.Save(context.Background(), raw)
	var verr *campaign.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, campaign.FieldMaxAttempts)
	assert.False(t, result.Validation.IsValid)
	assert.Empty(t, client.updated)
}

func TestCampaignService_RemoteFailureLeavesPolicyUnchanged(t *testing.T) {
	client := &fakeClient{policy: referencePolicy()}
	svc := NewCampaignService(client, &fakeAuditor{}, nil, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, false)
	require.NoError(t, err)

	client.updateErr = errors.New("502 bad gateway")
	edited := referencePolicy()
	edited.MaxAttempts = 2
	edited.AttemptDelaysMinutes = []int{30, 360}
	edited.DiscountLadderPercent = []int{0, 5}

	_, err = svc.Save(ctx, campaign.RawFromPolicy(edited))
	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "save campaign", actionErr.Op)
	require.Len(t, client.updated, 1)

	current, loaded := svc.Current()
	assert.True(t, loaded)
	assert.Equal(t, 3, current.MaxAttempts)
}

func TestCampaignService_SaveAuditsAndUpdatesListThreshold(t *testing.T) {
	client := &fakeClient{}
	auditor := &fakeAuditor{}
	sink := &inactivityRecorder{}
	svc := NewCampaignService(client, auditor, sink, nil)

	edited := referencePolicy()
	edited.InactivityMinutes = 45
	result, err := svc.Save(context.Background(), campaign.RawFromPolicy(edited))
	require.NoError(t, err)

	assert.Equal(t, "audit-1", result.AuditID)
	assert.Equal(t, 45, result.Campaign.Policy.InactivityMinutes)
	assert.Equal(t, 33, result.Campaign.MinRecommendedRecoveryWindowHours)
	require.Len(t, auditor.entries, 1)
	assert.Equal(t, []int{45}, sink.values)
}

func TestCampaignService_AuditFailureDoesNotFailSave(t *testing.T) {
	client := &fakeClient{}
	svc := NewCampaignService(client, &fakeAuditor{err: errors.New("disk full")}, nil, nil)

	result, err := svc.Save(context.Background(), campaign.RawFromPolicy(referencePolicy()))
	require.NoError(t, err)
	assert.Empty(t, result.AuditID)
}

func TestCampaignService_GetFailureIsTransient(t *testing.T) {
	client := &fakeClient{getErr: errors.New("connection refused")}
	svc := NewCampaignService(client, nil, nil, nil)

	_, err := svc.Get(context.Background(), false)
	var fetchErr *TransientFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "campaign", fetchErr.Op)

	_, loaded := svc.Current()
	assert.False(t, loaded)
}
