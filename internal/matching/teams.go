package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aidin1998/teammatch/common/dbutil"
	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/Aidin1998/teammatch/pkg/models"
	"gorm.io/gorm"
)

// NoLeader is returned by GetLeaderID for a team without a leader
const NoLeader = "NONE"

// TeamLookup resolves the team data the lifecycle needs from the roster store.
type TeamLookup interface {
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
	GetLeaderID(ctx context.Context, teamID string) (string, error)
	TeamIDsOfUser(ctx context.Context, userID string) ([]string, error)
}

// TeamDirectory is the gorm-backed TeamLookup over the teams and team_members tables
type TeamDirectory struct {
	db *gorm.DB
}

func NewTeamDirectory(db *gorm.DB) *TeamDirectory {
	return &TeamDirectory{db: db}
}

// GetTeam returns the team or a NotFound error
func (d *TeamDirectory) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	team, err := dbutil.FindOne[models.Team](d.db.WithContext(ctx).Where("team_id = ?", teamID))
	if apperrors.Is(err, apperrors.NotFound) {
		return nil, apperrors.NotFound.Explain("team %s not found", teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	return team, nil
}

// GetLeaderID returns the user id of the team's leader, or NoLeader
func (d *TeamDirectory) GetLeaderID(ctx context.Context, teamID string) (string, error) {
	var member models.TeamMember
	err := d.db.WithContext(ctx).
		Where("team_id = ? AND role = ?", teamID, models.RoleLeader).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NoLeader, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find team leader: %w", err)
	}
	return member.UserID, nil
}

// TeamIDsOfUser lists every team the user belongs to
func (d *TeamDirectory) TeamIDsOfUser(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	if err := d.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("user_id = ?", userID).
		Pluck("team_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list user teams: %w", err)
	}
	return ids, nil
}
