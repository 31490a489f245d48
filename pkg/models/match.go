package models

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the sport a team plays and a match is scheduled for
type EventType string

const (
	EventSoccer      EventType = "SOCCER"
	EventFutsal      EventType = "FUTSAL"
	EventBaseball    EventType = "BASEBALL"
	EventBasketball  EventType = "BASKETBALL"
	EventBadminton   EventType = "BADMINTON"
	EventTennis      EventType = "TENNIS"
	EventTableTennis EventType = "TABLE_TENNIS"
	EventBowling     EventType = "BOWLING"
)

var eventTypes = []EventType{
	EventSoccer, EventFutsal, EventBaseball, EventBasketball,
	EventBadminton, EventTennis, EventTableTennis, EventBowling,
}

// ParseEventType resolves a case-insensitive event name, accepting "table-tennis" style input.
func ParseEventType(s string) (EventType, error) {
	norm := EventType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	for _, et := range eventTypes {
		if et == norm {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// MatchState is the lifecycle state of a Matching
type MatchState string

const (
	StateWaiting  MatchState = "WAITING"
	StateSuccess  MatchState = "SUCCESS"
	StateComplete MatchState = "COMPLETE"
	StateCancel   MatchState = "CANCEL"
)

// Terminal reports whether no further transition is allowed out of s.
func (s MatchState) Terminal() bool {
	return s == StateComplete || s == StateCancel
}

// ParseMatchState resolves a case-insensitive state name
func ParseMatchState(s string) (MatchState, error) {
	switch st := MatchState(strings.ToUpper(strings.TrimSpace(s))); st {
	case StateWaiting, StateSuccess, StateComplete, StateCancel:
		return st, nil
	}
	return "", fmt.Errorf("unknown match state %q", s)
}

// MatchOrigin records which flow created a Matching
type MatchOrigin string

const (
	OriginManual MatchOrigin = "MANUAL"
	OriginAuto   MatchOrigin = "AUTO"
)

// MatchResponse is a leader's answer to an auto-paired match
type MatchResponse string

const (
	ResponseAccepted MatchResponse = "ACCEPTED"
	ResponseRejected MatchResponse = "REJECTED"
)

// Matching is a scheduled game between a host team and at most one accepted challenger
type Matching struct {
	MatchID          string      `json:"match_id" gorm:"primaryKey;size:36"`
	EventType        EventType   `json:"event_type" gorm:"size:32;index:idx_matchings_event_region"`
	Region           string      `json:"region" gorm:"size:64;index:idx_matchings_event_region"`
	MatchDate        time.Time   `json:"match_date" gorm:"uniqueIndex:idx_matchings_host_date"`
	HostTeamID       string      `json:"host_team_id" gorm:"size:64;uniqueIndex:idx_matchings_host_date"`
	VenueID          *string     `json:"venue_id,omitempty" gorm:"size:64"`
	ChallengerTeamID *string     `json:"challenger_team_id,omitempty" gorm:"size:64;index"`
	WinnerTeamID     *string     `json:"winner_team_id,omitempty" gorm:"size:64"`
	LoserTeamID      *string     `json:"loser_team_id,omitempty" gorm:"size:64"`
	WinnerScore      *int        `json:"winner_score,omitempty"`
	LoserScore       *int        `json:"loser_score,omitempty"`
	State            MatchState  `json:"state" gorm:"size:16;index"`
	Origin           MatchOrigin `json:"origin" gorm:"size:16"`
	Loan             bool        `json:"loan"`
	Etc              string      `json:"etc,omitempty" gorm:"type:text"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Challenge is a pending bid by a challenger team against a WAITING Matching
type Challenge struct {
	MatchID          string    `json:"match_id" gorm:"primaryKey;size:36"`
	ChallengerTeamID string    `json:"challenger_team_id" gorm:"primaryKey;size:64"`
	CreatedAt        time.Time `json:"created_at"`
}

// Team is the subset of team data the matchmaking core reads and updates
type Team struct {
	TeamID     string    `json:"team_id" gorm:"primaryKey;size:64"`
	Name       string    `json:"name" gorm:"size:128;uniqueIndex"`
	EventType  EventType `json:"event_type" gorm:"size:32"`
	Region     string    `json:"region" gorm:"size:64"`
	Img        string    `json:"img,omitempty"`
	Rating     int       `json:"rating" gorm:"default:1000"`
	MatchCount int       `json:"match_count"`
	WinCount   int       `json:"win_count"`
	LoseCount  int       `json:"lose_count"`
	DrawCount  int       `json:"draw_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TeamRole is a member's role inside a team
type TeamRole string

const (
	RoleLeader TeamRole = "LEADER"
	RoleMember TeamRole = "MEMBER"
)

// TeamMember links a user to a team
type TeamMember struct {
	TeamID   string    `json:"team_id" gorm:"primaryKey;size:64"`
	UserID   string    `json:"user_id" gorm:"primaryKey;size:64;index"`
	Role     TeamRole  `json:"role" gorm:"size:16"`
	JoinedAt time.Time `json:"joined_at" gorm:"autoCreateTime"`
}

// MatchRequest is an ephemeral auto-match ticket held in a regional queue
type MatchRequest struct {
	TeamID      string    `json:"teamId"`
	EventType   EventType `json:"eventType"`
	Region      string    `json:"region"`
	Rating      int       `json:"rating"`
	RequestedAt time.Time `json:"requestedAt"`
}

// MatchEvent names what happened in a pushed MatchStatus
type MatchEvent string

const (
	MatchPaired            MatchEvent = "PAIRED"
	MatchChallengeAccepted MatchEvent = "CHALLENGE_ACCEPTED"
	MatchChallengeDeclined MatchEvent = "CHALLENGE_DECLINED"
	MatchCancelled         MatchEvent = "MATCH_CANCELLED"
	MatchResultRegistered  MatchEvent = "RESULT_REGISTERED"
	MatchConfirmed         MatchEvent = "MATCH_CONFIRMED"
	MatchRejected          MatchEvent = "MATCH_REJECTED"
)

// MatchStatus is the payload pushed to leaders on a state change and returned by status polling
type MatchStatus struct {
	MatchID      string     `json:"matchId"`
	State        MatchState `json:"state"`
	OpponentName string     `json:"opponentName"`
	Event        MatchEvent `json:"event,omitempty"`
}
