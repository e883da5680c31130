package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/sweep"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageOf(ids ...string) recoveryapi.JourneyPage {
	page := recoveryapi.JourneyPage{Total: len(ids) + 10}
	for _, id := range ids {
		page.Journeys = append(page.Journeys, attempted(id))
	}
	return page
}

func ids(state journey.ListState) []string {
	out := make([]string, len(state.Rows))
	for i, r := range state.Rows {
		out[i] = r.ID
	}
	return out
}

func newTestList(client *fakeClient, b ChangeBroadcaster) *JourneyList {
	opts := []JourneyListOption{WithListClock(fixedClock)}
	if b != nil {
		opts = append(opts, WithBroadcaster(b))
	}
	return NewJourneyList(client, journey.Query{Limit: 3}, 30, nil, opts...)
}

func TestJourneyList_RecoveredPatchUpdatesRowInPlace(t *testing.T) {
	client := &fakeClient{journeysFn: func(journey.Query) (recoveryapi.JourneyPage, error) {
		return pageOf("a", "b", "c"), nil
	}}
	b := &recordingBroadcaster{}
	list := newTestList(client, b)

	_, err := list.Refresh(context.Background())
	require.NoError(t, err)

	change := list.ApplyPatch(journey.Patch{ID: "b", Status: journey.Some(journey.StatusRecovered)})
	assert.Equal(t, journey.ChangeUpdated, change.Kind)
	assert.Equal(t, 1, change.Index)

	view := list.View()
	assert.Equal(t, []string{"a", "b", "c"}, ids(view))
	assert.Equal(t, journey.StatusRecovered, view.Rows[1].Status)
	assert.Equal(t, t0, view.Rows[1].LastActivityAt)
	assert.Equal(t, []journey.ChangeKind{journey.ChangeReplaced, journey.ChangeUpdated}, b.Kinds())
}

func TestJourneyList_FreshCartIsNotInserted(t *testing.T) {
	list := newTestList(&fakeClient{}, nil)
	fresh := attempted("new")
	fresh.LastAttemptNo = 0
	fresh.LastActivityAt = fixedClock().Add(-10 * time.Minute)

	change := list.ApplyPatch(journey.PatchFromJourney(fresh))
	assert.Equal(t, journey.ChangeNone, change.Kind)
	assert.Empty(t, list.View().Rows)

	fresh.LastActivityAt = fixedClock().Add(-31 * time.Minute)
	change = list.ApplyPatch(journey.PatchFromJourney(fresh))
	assert.Equal(t, journey.ChangeInserted, change.Kind)
	assert.Equal(t, []string{"new"}, ids(list.View()))
}

func TestJourneyList_StalePageIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	firstStarted := make(chan struct{})
	calls := 0
	client := &fakeClient{}
	client.journeysFn = func(journey.Query) (recoveryapi.JourneyPage, error) {
		calls++
		if calls == 1 {
			close(firstStarted)
			<-release
			return pageOf("old"), nil
		}
		return pageOf("new"), nil
	}
	list := newTestList(client, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = list.Refresh(context.Background())
	}()
	<-firstStarted

	_, err := list.Refresh(context.Background())
	require.NoError(t, err)
	close(release)
	<-done

	assert.Equal(t, []string{"new"}, ids(list.View()))
	assert.EqualValues(t, 1, list.Stats().Discarded)
}

func TestJourneyList_FailedRefreshKeepsRows(t *testing.T) {
	fail := false
	client := &fakeClient{}
	client.journeysFn = func(journey.Query) (recoveryapi.JourneyPage, error) {
		if fail {
			return recoveryapi.JourneyPage{}, errors.New("timeout")
		}
		return pageOf("a"), nil
	}
	list := newTestList(client, nil)
	ctx := context.Background()

	_, err := list.Refresh(ctx)
	require.NoError(t, err)

	fail = true
	view, err := list.Refresh(ctx)
	var fetchErr *TransientFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, []string{"a"}, ids(view))
	assert.EqualValues(t, 1, list.Stats().Failures)
}

func TestJourneyList_SetQueryRefetchesWithNewFilter(t *testing.T) {
	var seen []journey.Query
	client := &fakeClient{}
	client.journeysFn = func(q journey.Query) (recoveryapi.JourneyPage, error) {
		seen = append(seen, q)
		return pageOf("r1"), nil
	}
	list := newTestList(client, nil)

	q := journey.Query{Status: "recovered", Search: "ada", Limit: 10}
	view, err := list.SetQuery(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, q, seen[0])
	assert.Equal(t, q, view.Query)
}

func TestJourneyList_SweepTarget(t *testing.T) {
	client := &fakeClient{journeysFn: func(journey.Query) (recoveryapi.JourneyPage, error) {
		return pageOf("a"), nil
	}}
	list := newTestList(client, nil)
	target := list.SweepTarget()
	ctx := context.Background()

	key := journey.Query{Limit: 3}.CacheKey()
	assert.Equal(t, []string{key}, target.DirtyKeys())
	require.NoError(t, target.Refresh(ctx, key))
	assert.Empty(t, target.DirtyKeys())
	assert.Empty(t, target.StaleKeys())

	list.Invalidate()
	assert.Equal(t, []string{key}, target.DirtyKeys())

	// a key left behind by a query change is a no-op
	require.NoError(t, target.Refresh(ctx, "journeys|gone"))
	_, _, calls := client.calls()
	assert.Equal(t, 1, calls)
}

func TestJourneyList_InactivityChangeMarksDirty(t *testing.T) {
	client := &fakeClient{journeysFn: func(journey.Query) (recoveryapi.JourneyPage, error) {
		return pageOf("a"), nil
	}}
	list := newTestList(client, nil)
	_, err := list.Refresh(context.Background())
	require.NoError(t, err)

	list.SetInactivity(30)
	assert.False(t, list.Stats().Dirty)

	list.SetInactivity(45)
	assert.True(t, list.Stats().Dirty)
	assert.Equal(t, 45, list.View().InactivityMinutes)
}

func TestJourneyList_ConvergesToServerAfterDirtyFlush(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{})
	calls := 0
	client := &fakeClient{}
	client.journeysFn = func(journey.Query) (recoveryapi.JourneyPage, error) {
		calls++
		switch calls {
		case 1:
			return pageOf("a", "b", "c"), nil
		case 2:
			// fetched before the server saw the recovery
			close(inFlight)
			<-release
			return pageOf("a", "b", "c"), nil
		default:
			page := pageOf("b", "a", "c")
			page.Journeys[0].Status = journey.StatusRecovered
			ref := "ord_server"
			page.Journeys[0].RecoveredOrderRef = &ref
			return page, nil
		}
	}
	list := newTestList(client, nil)
	ctx := context.Background()

	_, err := list.Refresh(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = list.Refresh(ctx)
	}()
	<-inFlight

	// optimistic patch while the refetch is in flight, as the invalidator does
	list.ApplyPatch(journey.Patch{ID: "b", Status: journey.Some(journey.StatusRecovered)})
	list.Invalidate()
	assert.Equal(t, journey.StatusRecovered, list.View().Rows[1].Status)

	close(release)
	<-done

	// the overlapping page overwrote the patch but cannot clear the dirty flag
	view := list.View()
	assert.Equal(t, journey.StatusActive, view.Rows[1].Status)
	assert.True(t, list.Stats().Dirty)

	worker := sweep.NewWorker(nil, &sweep.Config{Interval: time.Minute}, nil, list.SweepTarget())
	report := worker.FlushDirty(ctx)
	assert.Equal(t, 1, report.Refreshed)

	view = list.View()
	assert.Equal(t, []string{"b", "a", "c"}, ids(view))
	assert.Equal(t, journey.StatusRecovered, view.Rows[0].Status)
	require.NotNil(t, view.Rows[0].RecoveredOrderRef)
	assert.Equal(t, "ord_server", *view.Rows[0].RecoveredOrderRef)
	assert.False(t, list.Stats().Dirty)
	assert.Empty(t, list.SweepTarget().DirtyKeys())
}
