package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aidin1998/teammatch/common/dbutil"
	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateMatch opens a WAITING match hosted by in.HostTeamID. The event type is the
// host team's; a team cannot book two matches at the same date-time.
func (s *Service) CreateMatch(ctx context.Context, actingLeaderID string, in CreateMatchInput) (*models.Matching, error) {
	when, err := time.ParseInLocation(DayLayout+" "+TimeLayout, in.MatchDay+" "+in.MatchTime, time.UTC)
	if err != nil {
		return nil, apperrors.Validation.Explain("invalid match schedule %q %q", in.MatchDay, in.MatchTime).
			WithField("match_day", "expected "+DayLayout).
			WithField("match_time", "expected "+TimeLayout)
	}

	host, err := s.teams.GetTeam(ctx, in.HostTeamID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, host.TeamID, actingLeaderID); err != nil {
		return nil, err
	}

	region := strings.TrimSpace(in.Region)
	if region == "" {
		region = host.Region
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Matching{}).
		Where("host_team_id = ? AND match_date = ?", host.TeamID, when).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing bookings: %w", err)
	}
	if count > 0 {
		return nil, apperrors.Duplicate.Explain("team %s already has a match at %s", host.TeamID, when.Format(time.RFC3339))
	}

	now := s.now()
	m := &models.Matching{
		MatchID:    uuid.New().String(),
		EventType:  host.EventType,
		Region:     region,
		MatchDate:  when,
		HostTeamID: host.TeamID,
		VenueID:    in.VenueID,
		State:      models.StateWaiting,
		Origin:     models.OriginManual,
		Loan:       in.Loan,
		Etc:        s.policy.Sanitize(in.Etc),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if apperrors.Is(dbutil.WrapError(err), apperrors.Duplicate) {
			return nil, apperrors.Duplicate.Explain("team %s already has a match at %s", host.TeamID, when.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	recordTransition("NEW", models.StateWaiting)

	s.logger.Info("Match created",
		zap.String("match_id", m.MatchID),
		zap.String("host_team_id", m.HostTeamID),
		zap.String("event_type", string(m.EventType)),
		zap.Time("match_date", m.MatchDate))
	return m, nil
}

// ApplyChallenge records a bid by challengerTeamID against a WAITING match
func (s *Service) ApplyChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) error {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if err := requireState(m, models.StateWaiting); err != nil {
		return err
	}
	if m.ChallengerTeamID != nil {
		return apperrors.InvalidState.Explain("match %s already has an opponent", matchID)
	}
	challenger, err := s.teams.GetTeam(ctx, challengerTeamID)
	if err != nil {
		return err
	}
	if err := s.requireLeader(ctx, challenger.TeamID, actingLeaderID); err != nil {
		return err
	}
	if challenger.TeamID == m.HostTeamID {
		return apperrors.Duplicate.Explain("team %s cannot challenge its own match", challengerTeamID)
	}
	if challenger.EventType != m.EventType {
		return apperrors.Validation.Explain("team %s plays %s, match is %s", challengerTeamID, challenger.EventType, m.EventType)
	}

	err = s.withTx(ctx, func(tx *gorm.DB) error {
		locked, err := findMatch(tx, matchID, true)
		if err != nil {
			return err
		}
		if err := requireState(locked, models.StateWaiting); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Challenge{}).
			Where("match_id = ? AND challenger_team_id = ?", matchID, challengerTeamID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check challenge: %w", err)
		}
		if count > 0 {
			return apperrors.Duplicate.Explain("team %s already challenged match %s", challengerTeamID, matchID)
		}
		challenge := &models.Challenge{MatchID: matchID, ChallengerTeamID: challengerTeamID, CreatedAt: s.now()}
		if err := tx.Create(challenge).Error; err != nil {
			if apperrors.Is(dbutil.WrapError(err), apperrors.Duplicate) {
				return apperrors.Duplicate.Explain("team %s already challenged match %s", challengerTeamID, matchID)
			}
			return fmt.Errorf("failed to create challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Challenge submitted",
		zap.String("match_id", matchID),
		zap.String("challenger_team_id", challengerTeamID))
	return nil
}

// WithdrawChallenge lets the challenger's leader take back a pending bid
func (s *Service) WithdrawChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) error {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if err := requireState(m, models.StateWaiting); err != nil {
		return err
	}
	if err := s.requireLeader(ctx, challengerTeamID, actingLeaderID); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *gorm.DB) error {
		return removeChallenge(tx, matchID, challengerTeamID)
	})
}

// removeChallenge deletes one pending bid of a still WAITING match
func removeChallenge(tx *gorm.DB, matchID, challengerTeamID string) error {
	locked, err := findMatch(tx, matchID, true)
	if err != nil {
		return err
	}
	if err := requireState(locked, models.StateWaiting); err != nil {
		return err
	}
	res := tx.Where("match_id = ? AND challenger_team_id = ?", matchID, challengerTeamID).Delete(&models.Challenge{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete challenge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound.Explain("team %s has no challenge on match %s", challengerTeamID, matchID)
	}
	return nil
}

// GetChallengerTeams lists the pending challengers; only the host leader may see them
func (s *Service) GetChallengerTeams(ctx context.Context, matchID, actingLeaderID string) ([]TeamSummary, error) {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, m.HostTeamID, actingLeaderID); err != nil {
		return nil, err
	}
	return s.pendingChallengers(ctx, matchID)
}

// AcceptChallenge fixes challengerTeamID as the opponent, moves the match to SUCCESS
// and voids every other pending bid in the same transaction.
func (s *Service) AcceptChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) (*models.Matching, error) {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := requireState(m, models.StateWaiting); err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, m.HostTeamID, actingLeaderID); err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *gorm.DB) error {
		locked, err := findMatch(tx, matchID, true)
		if err != nil {
			return err
		}
		if err := requireState(locked, models.StateWaiting); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.Challenge{}).
			Where("match_id = ? AND challenger_team_id = ?", matchID, challengerTeamID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check challenge: %w", err)
		}
		if count == 0 {
			return apperrors.NotFound.Explain("team %s has no challenge on match %s", challengerTeamID, matchID)
		}
		if err := advance(tx, locked, models.StateSuccess, map[string]interface{}{
			"challenger_team_id": challengerTeamID,
			"updated_at":         s.now(),
		}, models.StateWaiting); err != nil {
			return err
		}
		if err := tx.Where("match_id = ?", matchID).Delete(&models.Challenge{}).Error; err != nil {
			return fmt.Errorf("failed to clear challenges: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	recordTransition(models.StateWaiting, models.StateSuccess)

	s.logger.Info("Challenge accepted",
		zap.String("match_id", matchID),
		zap.String("challenger_team_id", challengerTeamID))

	s.notify(ctx, challengerTeamID, models.MatchStatus{
		MatchID:      matchID,
		State:        models.StateSuccess,
		OpponentName: s.teamName(ctx, m.HostTeamID),
		Event:        models.MatchChallengeAccepted,
	})
	return s.loadMatch(ctx, matchID)
}

// DeclineChallenge removes one pending bid; the match stays WAITING
func (s *Service) DeclineChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) error {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if err := requireState(m, models.StateWaiting); err != nil {
		return err
	}
	if err := s.requireLeader(ctx, m.HostTeamID, actingLeaderID); err != nil {
		return err
	}
	if err := s.withTx(ctx, func(tx *gorm.DB) error {
		return removeChallenge(tx, matchID, challengerTeamID)
	}); err != nil {
		return err
	}

	s.logger.Info("Challenge declined",
		zap.String("match_id", matchID),
		zap.String("challenger_team_id", challengerTeamID))

	s.notify(ctx, challengerTeamID, models.MatchStatus{
		MatchID:      matchID,
		State:        models.StateWaiting,
		OpponentName: s.teamName(ctx, m.HostTeamID),
		Event:        models.MatchChallengeDeclined,
	})
	return nil
}

// CancelMatch moves a WAITING match to CANCEL and drops its pending bids. Every
// team that was waiting on the match is told.
func (s *Service) CancelMatch(ctx context.Context, matchID, actingLeaderID string) (*models.Matching, error) {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := requireState(m, models.StateWaiting); err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, m.HostTeamID, actingLeaderID); err != nil {
		return nil, err
	}

	var affected []string
	err = s.withTx(ctx, func(tx *gorm.DB) error {
		locked, err := findMatch(tx, matchID, true)
		if err != nil {
			return err
		}
		if err := requireState(locked, models.StateWaiting); err != nil {
			return err
		}
		if err := tx.Model(&models.Challenge{}).Where("match_id = ?", matchID).
			Pluck("challenger_team_id", &affected).Error; err != nil {
			return fmt.Errorf("failed to list challenges: %w", err)
		}
		if locked.ChallengerTeamID != nil {
			affected = append(affected, *locked.ChallengerTeamID)
		}
		if err := advance(tx, locked, models.StateCancel, map[string]interface{}{"updated_at": s.now()}, models.StateWaiting); err != nil {
			return err
		}
		if err := tx.Where("match_id = ?", matchID).Delete(&models.Challenge{}).Error; err != nil {
			return fmt.Errorf("failed to clear challenges: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	recordTransition(models.StateWaiting, models.StateCancel)

	s.logger.Info("Match cancelled",
		zap.String("match_id", matchID),
		zap.Int("notified_teams", len(affected)))

	hostName := s.teamName(ctx, m.HostTeamID)
	for _, teamID := range affected {
		s.notify(ctx, teamID, models.MatchStatus{
			MatchID:      matchID,
			State:        models.StateCancel,
			OpponentName: hostName,
			Event:        models.MatchCancelled,
		})
	}
	return s.loadMatch(ctx, matchID)
}

// Rating deltas applied when a result is registered
const (
	winRatingBonus     = 30
	drawRatingBonus    = 20
	scorelessDrawBonus = 10
)

// RegisterResult records the final score of a SUCCESS match and applies the team
// statistics exactly once, in the same transaction that moves it to COMPLETE.
func (s *Service) RegisterResult(ctx context.Context, matchID string, hostScore, challengerScore int, actingLeaderID string) (*models.Matching, error) {
	if hostScore < 0 || challengerScore < 0 {
		return nil, apperrors.Validation.Explain("scores must not be negative")
	}
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := requireState(m, models.StateSuccess); err != nil {
		return nil, err
	}
	if err := s.requireLeader(ctx, m.HostTeamID, actingLeaderID); err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *gorm.DB) error {
		locked, err := findMatch(tx, matchID, true)
		if err != nil {
			return err
		}
		if err := requireState(locked, models.StateSuccess); err != nil {
			return err
		}
		if locked.ChallengerTeamID == nil {
			return apperrors.InvalidState.Explain("match %s has no opponent", matchID)
		}
		host, challenger := locked.HostTeamID, *locked.ChallengerTeamID

		fields := map[string]interface{}{"updated_at": s.now()}
		switch {
		case hostScore == challengerScore:
			bonus := drawRatingBonus
			if hostScore == 0 {
				bonus = scorelessDrawBonus
			}
			if err := bumpTeams(tx, []string{host, challenger}, bonus, "draw_count"); err != nil {
				return err
			}
			fields["winner_score"] = hostScore
			fields["loser_score"] = challengerScore
		default:
			winner, loser := host, challenger
			high, low := hostScore, challengerScore
			if challengerScore > hostScore {
				winner, loser = challenger, host
				high, low = challengerScore, hostScore
			}
			if err := bumpTeams(tx, []string{winner}, winRatingBonus, "win_count"); err != nil {
				return err
			}
			if err := bumpTeams(tx, []string{loser}, 0, "lose_count"); err != nil {
				return err
			}
			fields["winner_team_id"] = winner
			fields["loser_team_id"] = loser
			fields["winner_score"] = high
			fields["loser_score"] = low
		}
		return advance(tx, locked, models.StateComplete, fields, models.StateSuccess)
	})
	if err != nil {
		return nil, err
	}
	recordTransition(models.StateSuccess, models.StateComplete)

	s.logger.Info("Match result registered",
		zap.String("match_id", matchID),
		zap.Int("host_score", hostScore),
		zap.Int("challenger_score", challengerScore))

	done, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, *done.ChallengerTeamID, models.MatchStatus{
		MatchID:      matchID,
		State:        models.StateComplete,
		OpponentName: s.teamName(ctx, done.HostTeamID),
		Event:        models.MatchResultRegistered,
	})
	return done, nil
}

// bumpTeams adds rating and one match plus one counter to each team
func bumpTeams(tx *gorm.DB, teamIDs []string, rating int, counter string) error {
	res := tx.Model(&models.Team{}).Where("team_id IN ?", teamIDs).Updates(map[string]interface{}{
		"rating":      gorm.Expr("rating + ?", rating),
		"match_count": gorm.Expr("match_count + 1"),
		counter:       gorm.Expr(counter + " + 1"),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update team statistics: %w", res.Error)
	}
	if res.RowsAffected != int64(len(teamIDs)) {
		return apperrors.NotFound.Explain("team statistics missing for %v", teamIDs)
	}
	return nil
}
