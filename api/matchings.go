package api

import (
	"github.com/Aidin1998/teammatch/api/responses"
	"github.com/Aidin1998/teammatch/common/auth"
	"github.com/Aidin1998/teammatch/internal/matching"
	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createMatchRequest struct {
	TeamID    string  `json:"team_id" validate:"required"`
	Region    string  `json:"region" validate:"omitempty,max=64"`
	MatchDay  string  `json:"match_day" validate:"required,datetime=2006-01-02"`
	MatchTime string  `json:"match_time" validate:"required,datetime=15:04"`
	VenueID   *string `json:"venue_id" validate:"omitempty,min=1"`
	Loan      bool    `json:"loan"`
	Etc       string  `json:"etc" validate:"max=1000"`
}

type teamRequest struct {
	TeamID string `json:"team_id" validate:"required"`
}

type resultRequest struct {
	HostScore       *int `json:"host_score" validate:"required,min=0"`
	ChallengerScore *int `json:"challenger_score" validate:"required,min=0"`
}

type listQuery struct {
	EventType string `form:"event_type" json:"event_type"`
	Region    string `form:"region" json:"region"`
	Page      int    `form:"page" json:"page" validate:"min=0"`
	Size      int    `form:"size" json:"size" validate:"min=0,max=100"`
}

func (q listQuery) page() matching.Page {
	return matching.Page{Number: q.Page, Size: q.Size}
}

// bindJSON decodes and validates the request body, rendering the failure itself
func (s *Server) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.fail(c, apperrors.Validation.Explain("malformed request body").Wrap(err))
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.fail(c, err)
		return false
	}
	return true
}

func (s *Server) bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		s.fail(c, apperrors.Validation.Explain("malformed query").Wrap(err))
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.fail(c, err)
		return false
	}
	return true
}

// fail renders err; unclassified errors are logged since their detail is hidden from the client
func (s *Server) fail(c *gin.Context, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		s.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", auth.UserID(c)),
			zap.Error(err))
	}
	responses.Error(c, err)
}

func (s *Server) createMatch(c *gin.Context) {
	var req createMatchRequest
	if !s.bindJSON(c, &req) {
		return
	}
	m, err := s.matches.CreateMatch(c.Request.Context(), auth.UserID(c), matching.CreateMatchInput{
		HostTeamID: req.TeamID,
		Region:     req.Region,
		MatchDay:   req.MatchDay,
		MatchTime:  req.MatchTime,
		VenueID:    req.VenueID,
		Loan:       req.Loan,
		Etc:        req.Etc,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Created(c, m, "Match created")
}

func (s *Server) listMatches(c *gin.Context) {
	var q listQuery
	if !s.bindQuery(c, &q) {
		return
	}
	var eventType models.EventType
	if q.EventType != "" {
		et, err := models.ParseEventType(q.EventType)
		if err != nil {
			s.fail(c, apperrors.Validation.Explain("%s", err).WithField("event_type", "unknown event type"))
			return
		}
		eventType = et
	}
	views, err := s.matches.ListMatches(c.Request.Context(), matching.ListFilter{
		EventType: eventType,
		Region:    q.Region,
		Page:      q.page(),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Paginated(c, views, pageMeta(q, len(views)))
}

func (s *Server) listByState(c *gin.Context) {
	var q listQuery
	if !s.bindQuery(c, &q) {
		return
	}
	state, err := models.ParseMatchState(c.Param("state"))
	if err != nil {
		s.fail(c, apperrors.Validation.Explain("%s", err).WithField("state", "expected success or complete"))
		return
	}
	views, err := s.matches.ListByState(c.Request.Context(), state, q.page())
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Paginated(c, views, pageMeta(q, len(views)))
}

func pageMeta(q listQuery, count int) *responses.PaginationMeta {
	size := q.Size
	if size == 0 {
		size = 10
	}
	return responses.CreatePaginationMeta(q.Page, size, count)
}

func (s *Server) listTeamMatches(c *gin.Context) {
	var state models.MatchState
	if raw := c.Query("state"); raw != "" {
		st, err := models.ParseMatchState(raw)
		if err != nil {
			s.fail(c, apperrors.Validation.Explain("%s", err).WithField("state", "unknown match state"))
			return
		}
		state = st
	}
	views, err := s.matches.ListTeamMatches(c.Request.Context(), c.Param("teamId"), state)
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, views)
}

func (s *Server) getMatch(c *gin.Context) {
	view, err := s.matches.GetMatchDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, view)
}

func (s *Server) nextMatch(c *gin.Context) {
	view, err := s.matches.NextScheduledMatch(c.Request.Context(), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, view)
}

func (s *Server) applyChallenge(c *gin.Context) {
	var req teamRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.matches.ApplyChallenge(c.Request.Context(), c.Param("id"), req.TeamID, auth.UserID(c)); err != nil {
		s.fail(c, err)
		return
	}
	responses.Created(c, gin.H{"match_id": c.Param("id"), "team_id": req.TeamID}, "Challenge submitted")
}

func (s *Server) getChallengers(c *gin.Context) {
	teams, err := s.matches.GetChallengerTeams(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, teams)
}

func (s *Server) withdrawChallenge(c *gin.Context) {
	if err := s.matches.WithdrawChallenge(c.Request.Context(), c.Param("id"), c.Param("teamId"), auth.UserID(c)); err != nil {
		s.fail(c, err)
		return
	}
	responses.NoContent(c)
}

func (s *Server) acceptChallenge(c *gin.Context) {
	m, err := s.matches.AcceptChallenge(c.Request.Context(), c.Param("id"), c.Param("teamId"), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, m, "Challenge accepted")
}

func (s *Server) declineChallenge(c *gin.Context) {
	if err := s.matches.DeclineChallenge(c.Request.Context(), c.Param("id"), c.Param("teamId"), auth.UserID(c)); err != nil {
		s.fail(c, err)
		return
	}
	responses.NoContent(c)
}

func (s *Server) cancelMatch(c *gin.Context) {
	m, err := s.matches.CancelMatch(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, m, "Match cancelled")
}

func (s *Server) registerResult(c *gin.Context) {
	var req resultRequest
	if !s.bindJSON(c, &req) {
		return
	}
	m, err := s.matches.RegisterResult(c.Request.Context(), c.Param("id"), *req.HostScore, *req.ChallengerScore, auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, m, "Result registered")
}
