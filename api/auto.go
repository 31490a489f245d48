package api

import (
	"github.com/Aidin1998/teammatch/api/responses"
	"github.com/Aidin1998/teammatch/common/auth"
	"github.com/Aidin1998/teammatch/pkg/models"
	"github.com/gin-gonic/gin"
)

type respondRequest struct {
	Response string `json:"response" validate:"required,oneof=ACCEPTED REJECTED"`
}

// requestAutoMatch queues the team; the pairing result arrives as a notification
func (s *Server) requestAutoMatch(c *gin.Context) {
	var req teamRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.matches.RequestAutoMatch(c.Request.Context(), req.TeamID, auth.UserID(c)); err != nil {
		s.fail(c, err)
		return
	}
	responses.Accepted(c, gin.H{"team_id": req.TeamID}, "Team queued for matching")
}

func (s *Server) respondAutoMatch(c *gin.Context) {
	var req respondRequest
	if !s.bindJSON(c, &req) {
		return
	}
	status, err := s.matches.HandleMatchResponse(c.Request.Context(), c.Param("id"), auth.UserID(c), models.MatchResponse(req.Response))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, status)
}

func (s *Server) autoMatchStatus(c *gin.Context) {
	status, err := s.matches.GetMatchStatus(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	responses.Success(c, status)
}
