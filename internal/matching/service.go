// Package matching owns the Matching lifecycle: manual challenges, auto-paired
// confirmations, result registration and the read views over both.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/teammatch/common/dbutil"
	"github.com/Aidin1998/teammatch/internal/notification"
	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/metrics"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Layouts accepted for the schedule of a manually created match
const (
	DayLayout  = "2006-01-02"
	TimeLayout = "15:04"
)

// MatchService defines the match lifecycle operations
type MatchService interface {
	Start() error
	Stop() error

	CreateMatch(ctx context.Context, actingLeaderID string, in CreateMatchInput) (*models.Matching, error)
	ApplyChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) error
	WithdrawChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) error
	GetChallengerTeams(ctx context.Context, matchID, actingLeaderID string) ([]TeamSummary, error)
	AcceptChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) (*models.Matching, error)
	DeclineChallenge(ctx context.Context, matchID, challengerTeamID, actingLeaderID string) error
	CancelMatch(ctx context.Context, matchID, actingLeaderID string) (*models.Matching, error)
	RegisterResult(ctx context.Context, matchID string, hostScore, challengerScore int, actingLeaderID string) (*models.Matching, error)

	RequestAutoMatch(ctx context.Context, teamID, actingLeaderID string) error
	CreatePairedMatch(ctx context.Context, first, second models.MatchRequest) (*models.Matching, error)
	HandleMatchResponse(ctx context.Context, matchID, respondingUserID string, response models.MatchResponse) (*models.MatchStatus, error)
	GetMatchStatus(ctx context.Context, matchID, viewerID string) (*models.MatchStatus, error)

	GetMatchDetail(ctx context.Context, matchID string) (*MatchView, error)
	ListMatches(ctx context.Context, filter ListFilter) ([]MatchView, error)
	ListByState(ctx context.Context, state models.MatchState, page Page) ([]MatchView, error)
	ListTeamMatches(ctx context.Context, teamID string, state models.MatchState) ([]MatchView, error)
	NextScheduledMatch(ctx context.Context, userID string) (*MatchView, error)
}

// Enqueuer accepts auto-match requests
type Enqueuer interface {
	Enqueue(ctx context.Context, req models.MatchRequest) error
}

// CreateMatchInput describes a match a host team opens for challengers
type CreateMatchInput struct {
	HostTeamID string
	Region     string
	MatchDay   string
	MatchTime  string
	VenueID    *string
	Loan       bool
	Etc        string
}

// Service implements MatchService
type Service struct {
	logger   *zap.Logger
	db       *gorm.DB
	teams    TeamLookup
	queue    Enqueuer
	notifier notification.Gateway
	policy   *bluemonday.Policy
	now      func() time.Time
}

// NewService creates a new MatchService
func NewService(logger *zap.Logger, db *gorm.DB, teams TeamLookup, queue Enqueuer, notifier notification.Gateway) (MatchService, error) {
	if db == nil || teams == nil || notifier == nil {
		return nil, fmt.Errorf("matching service needs a database, a team lookup and a notifier")
	}
	svc := &Service{
		logger:   logger,
		db:       db,
		teams:    teams,
		queue:    queue,
		notifier: notifier,
		policy:   bluemonday.StrictPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	return svc, nil
}

// Start starts the matching service
func (s *Service) Start() error {
	s.logger.Info("Matching service started")
	return nil
}

// Stop stops the matching service
func (s *Service) Stop() error {
	s.logger.Info("Matching service stopped")
	return nil
}

// findMatch loads a match, optionally taking a row lock inside a transaction
func findMatch(db *gorm.DB, matchID string, lock bool) (*models.Matching, error) {
	q := db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	m, err := dbutil.FindOne[models.Matching](q.Where("match_id = ?", matchID))
	if apperrors.Is(err, apperrors.NotFound) {
		return nil, apperrors.NotFound.Explain("match %s not found", matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}
	return m, nil
}

func (s *Service) loadMatch(ctx context.Context, matchID string) (*models.Matching, error) {
	return findMatch(s.db.WithContext(ctx), matchID, false)
}

// requireState rejects a match whose state is not one of allowed
func requireState(m *models.Matching, allowed ...models.MatchState) error {
	for _, st := range allowed {
		if m.State == st {
			return nil
		}
	}
	return apperrors.InvalidState.Explain("match %s is %s", m.MatchID, m.State)
}

// requireLeader checks that userID leads teamID
func (s *Service) requireLeader(ctx context.Context, teamID, userID string) error {
	leader, err := s.teams.GetLeaderID(ctx, teamID)
	if err != nil {
		return err
	}
	if leader == NoLeader || leader != userID {
		return apperrors.Forbidden.Explain("user %s is not the leader of team %s", userID, teamID)
	}
	return nil
}

// withTx runs fn in a transaction, committing only when fn returns nil
func (s *Service) withTx(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// advance moves the locked match from one of from to to. The state guard in the
// WHERE clause makes the update a compare-and-set; losing it is InvalidState.
func advance(tx *gorm.DB, m *models.Matching, to models.MatchState, fields map[string]interface{}, from ...models.MatchState) error {
	updates := map[string]interface{}{"state": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := tx.Model(&models.Matching{}).
		Where("match_id = ? AND state IN ?", m.MatchID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update match state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.InvalidState.Explain("match %s changed state concurrently", m.MatchID)
	}
	return nil
}

func recordTransition(from, to models.MatchState) {
	metrics.MatchTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// notify pushes a status to a leader. Delivery failures never fail the caller.
func (s *Service) notify(ctx context.Context, teamID string, status models.MatchStatus) {
	leader, err := s.teams.GetLeaderID(ctx, teamID)
	if err != nil || leader == NoLeader {
		s.logger.Warn("Cannot resolve leader for notification",
			zap.String("team_id", teamID),
			zap.String("match_id", status.MatchID),
			zap.Error(err))
		return
	}
	if err := s.notifier.SendToUser(ctx, leader, notification.TopicMatch, status); err != nil {
		s.logger.Warn("Failed to deliver match notification",
			zap.String("user_id", leader),
			zap.String("match_id", status.MatchID),
			zap.Error(err))
	}
}

// teamName returns the display name of teamID, or "" when it cannot be resolved
func (s *Service) teamName(ctx context.Context, teamID string) string {
	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return ""
	}
	return team.Name
}
