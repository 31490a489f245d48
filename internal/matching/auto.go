package matching

import (
	"context"
	"fmt"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RequestAutoMatch queues the team for pairing with the event type, region and
// rating it has right now.
func (s *Service) RequestAutoMatch(ctx context.Context, teamID, actingLeaderID string) error {
	if s.queue == nil {
		return apperrors.StoreUnavailable.Explain("auto matching is not configured")
	}
	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.requireLeader(ctx, team.TeamID, actingLeaderID); err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, models.MatchRequest{
		TeamID:    team.TeamID,
		EventType: team.EventType,
		Region:    team.Region,
		Rating:    team.Rating,
	})
}

// CreatePairedMatch persists a WAITING match for two requests taken from one queue.
// The earlier request hosts; both sides are fixed at creation.
func (s *Service) CreatePairedMatch(ctx context.Context, first, second models.MatchRequest) (*models.Matching, error) {
	if first.TeamID == second.TeamID {
		return nil, apperrors.Duplicate.Explain("team %s cannot be paired with itself", first.TeamID)
	}
	now := s.now()
	challenger := second.TeamID
	m := &models.Matching{
		MatchID:          uuid.New().String(),
		EventType:        first.EventType,
		Region:           first.Region,
		MatchDate:        now,
		HostTeamID:       first.TeamID,
		ChallengerTeamID: &challenger,
		State:            models.StateWaiting,
		Origin:           models.OriginAuto,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("failed to create paired match: %w", err)
	}
	recordTransition("NEW", models.StateWaiting)

	s.logger.Info("Auto match created",
		zap.String("match_id", m.MatchID),
		zap.String("host_team_id", first.TeamID),
		zap.String("challenger_team_id", second.TeamID),
		zap.String("event_type", string(first.EventType)),
		zap.String("region", first.Region))
	return m, nil
}

// HandleMatchResponse applies a leader's answer to an auto-paired match.
// REJECTED cancels it; ACCEPTED confirms it straight to COMPLETE without a score.
// The other side's leader is told the outcome.
func (s *Service) HandleMatchResponse(ctx context.Context, matchID, respondingUserID string, response models.MatchResponse) (*models.MatchStatus, error) {
	var to models.MatchState
	var from []models.MatchState
	var event models.MatchEvent
	switch response {
	case models.ResponseAccepted:
		to, from, event = models.StateComplete, []models.MatchState{models.StateWaiting}, models.MatchConfirmed
	case models.ResponseRejected:
		to, from, event = models.StateCancel, []models.MatchState{models.StateWaiting, models.StateSuccess}, models.MatchRejected
	default:
		return nil, apperrors.Validation.Explain("unknown response %q", response).WithField("response", "ACCEPTED or REJECTED")
	}

	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Origin != models.OriginAuto || m.ChallengerTeamID == nil {
		return nil, apperrors.InvalidState.Explain("match %s was not auto-paired", matchID)
	}
	if err := requireState(m, from...); err != nil {
		return nil, err
	}

	respondingTeam, counterpart, err := s.sideOf(ctx, m, respondingUserID)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *gorm.DB) error {
		locked, err := findMatch(tx, matchID, true)
		if err != nil {
			return err
		}
		if err := requireState(locked, from...); err != nil {
			return err
		}
		return advance(tx, locked, to, map[string]interface{}{"updated_at": s.now()}, from...)
	})
	if err != nil {
		return nil, err
	}
	recordTransition(m.State, to)

	s.logger.Info("Auto match answered",
		zap.String("match_id", matchID),
		zap.String("team_id", respondingTeam),
		zap.String("response", string(response)),
		zap.String("state", string(to)))

	s.notify(ctx, counterpart, models.MatchStatus{
		MatchID:      matchID,
		State:        to,
		OpponentName: s.teamName(ctx, respondingTeam),
		Event:        event,
	})
	return &models.MatchStatus{
		MatchID:      matchID,
		State:        to,
		OpponentName: s.teamName(ctx, counterpart),
		Event:        event,
	}, nil
}

// sideOf returns the team userID leads in m and the opposite team
func (s *Service) sideOf(ctx context.Context, m *models.Matching, userID string) (own, other string, err error) {
	host, challenger := m.HostTeamID, *m.ChallengerTeamID
	if err := s.requireLeader(ctx, host, userID); err == nil {
		return host, challenger, nil
	} else if !apperrors.Is(err, apperrors.Forbidden) {
		return "", "", err
	}
	if err := s.requireLeader(ctx, challenger, userID); err != nil {
		return "", "", err
	}
	return challenger, host, nil
}

// GetMatchStatus reports the state of a match and the opponent's name. The opponent
// is the challenger unless viewerID leads the challenger team.
func (s *Service) GetMatchStatus(ctx context.Context, matchID, viewerID string) (*models.MatchStatus, error) {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	status := &models.MatchStatus{MatchID: m.MatchID, State: m.State}
	if m.ChallengerTeamID == nil {
		return status, nil
	}
	opponent := *m.ChallengerTeamID
	if viewerID != "" {
		if leader, err := s.teams.GetLeaderID(ctx, opponent); err == nil && leader == viewerID {
			opponent = m.HostTeamID
		}
	}
	status.OpponentName = s.teamName(ctx, opponent)
	return status, nil
}
