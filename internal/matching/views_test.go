package matching

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMatchDetail(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	m := f.openMatch(t, "2030-05-01")
	require.NoError(t, f.svc.ApplyChallenge(ctx, m.MatchID, "C2", "u2"))

	detail, err := f.svc.GetMatchDetail(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, "Hornets", detail.HostTeam.Name)
	assert.Nil(t, detail.ChallengerTeam)
	require.Len(t, detail.Challengers, 1)
	assert.Equal(t, "C2", detail.Challengers[0].TeamID)
	assert.True(t, detail.Loan)

	_, err = f.svc.GetMatchDetail(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.NotFound)
}

func TestListMatches(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	early := f.openMatch(t, "2030-05-01")
	late := f.openMatch(t, "2030-05-09")
	_, err := f.svc.CreateMatch(ctx, "ub", CreateMatchInput{HostTeamID: "B", Region: "Busan", MatchDay: "2030-05-03", MatchTime: "10:00"})
	require.NoError(t, err)

	all, err := f.svc.ListMatches(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	soccer, err := f.svc.ListMatches(ctx, ListFilter{EventType: models.EventSoccer, Region: "Seoul"})
	require.NoError(t, err)
	require.Len(t, soccer, 2)
	assert.Equal(t, late.MatchID, soccer[0].MatchID, "latest date first")
	assert.Equal(t, early.MatchID, soccer[1].MatchID)

	paged, err := f.svc.ListMatches(ctx, ListFilter{EventType: models.EventSoccer, Page: Page{Number: 1, Size: 1}})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, early.MatchID, paged[0].MatchID)

	_, err = f.svc.CancelMatch(ctx, early.MatchID, "uh")
	require.NoError(t, err)
	soccer, err = f.svc.ListMatches(ctx, ListFilter{EventType: models.EventSoccer})
	require.NoError(t, err)
	assert.Len(t, soccer, 1, "only WAITING matches are listed")
}

func TestListByStateAndTeam(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	m := f.successMatch(t)
	f.openMatch(t, "2030-08-01")

	success, err := f.svc.ListByState(ctx, models.StateSuccess, Page{})
	require.NoError(t, err)
	require.Len(t, success, 1)
	assert.Equal(t, m.MatchID, success[0].MatchID)
	require.NotNil(t, success[0].ChallengerTeam)
	assert.Equal(t, "Cobras", success[0].ChallengerTeam.Name)

	_, err = f.svc.ListByState(ctx, models.StateWaiting, Page{})
	assert.ErrorIs(t, err, apperrors.Validation)

	hostAll, err := f.svc.ListTeamMatches(ctx, "H", "")
	require.NoError(t, err)
	assert.Len(t, hostAll, 2)

	asChallenger, err := f.svc.ListTeamMatches(ctx, "C1", models.StateSuccess)
	require.NoError(t, err)
	require.Len(t, asChallenger, 1)
	assert.Equal(t, m.MatchID, asChallenger[0].MatchID)
}

func TestNextScheduledMatch(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.svc.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

	_, err := f.svc.NextScheduledMatch(ctx, "u1")
	assert.ErrorIs(t, err, apperrors.NotFound)

	m := f.successMatch(t)

	next, err := f.svc.NextScheduledMatch(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, m.MatchID, next.MatchID)

	next, err = f.svc.NextScheduledMatch(ctx, "uh-member")
	require.NoError(t, err)
	assert.Equal(t, m.MatchID, next.MatchID)

	_, err = f.svc.NextScheduledMatch(ctx, "stranger")
	assert.ErrorIs(t, err, apperrors.NotFound)

	f.svc.now = func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = f.svc.NextScheduledMatch(ctx, "u1")
	assert.ErrorIs(t, err, apperrors.NotFound, "past matches are not upcoming")
}
