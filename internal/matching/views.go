package matching

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// TeamSummary is the team data shown next to a match
type TeamSummary struct {
	TeamID string `json:"team_id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	Img    string `json:"img,omitempty"`
	Rating int    `json:"rating"`
}

func summarize(t models.Team) TeamSummary {
	return TeamSummary{TeamID: t.TeamID, Name: t.Name, Region: t.Region, Img: t.Img, Rating: t.Rating}
}

// MatchView is a match with its teams resolved
type MatchView struct {
	models.Matching
	HostTeam       TeamSummary   `json:"host_team"`
	ChallengerTeam *TeamSummary  `json:"challenger_team,omitempty"`
	Challengers    []TeamSummary `json:"challengers,omitempty"`
}

// Page selects a zero-based page of results
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Page) apply(q *gorm.DB) *gorm.DB {
	p = p.normalize()
	return q.Limit(p.Size).Offset(p.Number * p.Size)
}

// ListFilter narrows the open-match listing
type ListFilter struct {
	EventType models.EventType
	Region    string
	Page      Page
}

// GetMatchDetail returns a match with host, accepted challenger and pending challengers
func (s *Service) GetMatchDetail(ctx context.Context, matchID string) (*MatchView, error) {
	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	views, err := s.resolve(ctx, []models.Matching{*m})
	if err != nil {
		return nil, err
	}
	view := views[0]
	if m.State == models.StateWaiting {
		if view.Challengers, err = s.pendingChallengers(ctx, matchID); err != nil {
			return nil, err
		}
	}
	return &view, nil
}

// ListMatches lists WAITING matches, latest date first
func (s *Service) ListMatches(ctx context.Context, filter ListFilter) ([]MatchView, error) {
	q := s.db.WithContext(ctx).Where("state = ?", models.StateWaiting)
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.Region != "" {
		q = q.Where("region = ?", filter.Region)
	}
	var matches []models.Matching
	if err := filter.Page.apply(q.Order("match_date DESC")).Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return s.resolve(ctx, matches)
}

// ListByState lists SUCCESS or COMPLETE matches, latest date first
func (s *Service) ListByState(ctx context.Context, state models.MatchState, page Page) ([]MatchView, error) {
	if state != models.StateSuccess && state != models.StateComplete {
		return nil, apperrors.Validation.Explain("listing by state supports SUCCESS and COMPLETE, got %q", state)
	}
	var matches []models.Matching
	q := s.db.WithContext(ctx).Where("state = ?", state).Order("match_date DESC")
	if err := page.apply(q).Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return s.resolve(ctx, matches)
}

// ListTeamMatches lists matches the team hosts or plays in, optionally in one state
func (s *Service) ListTeamMatches(ctx context.Context, teamID string, state models.MatchState) ([]MatchView, error) {
	q := s.db.WithContext(ctx).Where("host_team_id = ? OR challenger_team_id = ?", teamID, teamID)
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var matches []models.Matching
	if err := q.Order("match_date DESC").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to list team matches: %w", err)
	}
	return s.resolve(ctx, matches)
}

// NextScheduledMatch returns the earliest upcoming SUCCESS match of any team the user belongs to
func (s *Service) NextScheduledMatch(ctx context.Context, userID string) (*MatchView, error) {
	teamIDs, err := s.teams.TeamIDsOfUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(teamIDs) == 0 {
		return nil, apperrors.NotFound.Explain("user %s belongs to no team", userID)
	}

	var m models.Matching
	err = s.db.WithContext(ctx).
		Where("state = ? AND match_date > ?", models.StateSuccess, s.now()).
		Where(s.db.Where("host_team_id IN ?", teamIDs).Or("challenger_team_id IN ?", teamIDs)).
		Order("match_date ASC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound.Explain("no upcoming match for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next match: %w", err)
	}
	views, err := s.resolve(ctx, []models.Matching{m})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) pendingChallengers(ctx context.Context, matchID string) ([]TeamSummary, error) {
	var teams []models.Team
	err := s.db.WithContext(ctx).
		Joins("JOIN challenges ON challenges.challenger_team_id = teams.team_id").
		Where("challenges.match_id = ?", matchID).
		Order("challenges.created_at ASC").
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list challengers: %w", err)
	}
	out := make([]TeamSummary, 0, len(teams))
	for _, t := range teams {
		out = append(out, summarize(t))
	}
	return out, nil
}

// resolve attaches team summaries to matches with a single team query
func (s *Service) resolve(ctx context.Context, matches []models.Matching) ([]MatchView, error) {
	ids := make(map[string]struct{})
	for _, m := range matches {
		ids[m.HostTeamID] = struct{}{}
		if m.ChallengerTeamID != nil {
			ids[*m.ChallengerTeamID] = struct{}{}
		}
	}
	teams := make(map[string]models.Team, len(ids))
	if len(ids) > 0 {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		var found []models.Team
		if err := s.db.WithContext(ctx).Where("team_id IN ?", list).Find(&found).Error; err != nil {
			return nil, fmt.Errorf("failed to load teams: %w", err)
		}
		for _, t := range found {
			teams[t.TeamID] = t
		}
	}

	views := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		v := MatchView{Matching: m, HostTeam: summarize(teams[m.HostTeamID])}
		if v.HostTeam.TeamID == "" {
			v.HostTeam.TeamID = m.HostTeamID
		}
		if m.ChallengerTeamID != nil {
			c := summarize(teams[*m.ChallengerTeamID])
			c.TeamID = *m.ChallengerTeamID
			v.ChallengerTeam = &c
		}
		views = append(views, v)
	}
	return views, nil
}
