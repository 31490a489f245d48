// Package pairing turns queue-changed signals into auto-paired matches.
package pairing

import (
	"context"
	"fmt"

	"github.com/Aidin1998/teammatch/internal/matching"
	"github.com/Aidin1998/teammatch/internal/matchqueue"
	"github.com/Aidin1998/teammatch/internal/notification"
	"github.com/Aidin1998/teammatch/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxContendedRetries = 3

// PairSource hands out pairs from a regional queue
type PairSource interface {
	TryMatch(ctx context.Context, key matchqueue.QueueKey) (matchqueue.Pair, bool, error)
	Size(ctx context.Context, key matchqueue.QueueKey) (int64, error)
	Restore(ctx context.Context, pair matchqueue.Pair)
}

// MatchCreator persists an auto-paired match
type MatchCreator interface {
	CreatePairedMatch(ctx context.Context, first, second models.MatchRequest) (*models.Matching, error)
}

// Coordinator pairs requests on every queue-changed signal. It holds no lock of
// its own; concurrent calls for one key rely on TryMatch handing each request out once.
type Coordinator struct {
	source   PairSource
	matches  MatchCreator
	teams    matching.TeamLookup
	notifier notification.Gateway
	maxPairs int
	resignal matchqueue.Signaler
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewCoordinator creates a Coordinator that forms at most maxPairs pairs per signal
func NewCoordinator(source PairSource, matches MatchCreator, teams matching.TeamLookup, notifier notification.Gateway, maxPairs int, logger *zap.Logger) *Coordinator {
	if maxPairs < 1 {
		maxPairs = 1
	}
	return &Coordinator{
		source:   source,
		matches:  matches,
		teams:    teams,
		notifier: notifier,
		maxPairs: maxPairs,
		tracer:   otel.Tracer("teammatch/pairing"),
		logger:   logger,
	}
}

// SetResignal installs the signaler used when a signal's pair budget runs out
// with requests still waiting.
func (c *Coordinator) SetResignal(s matchqueue.Signaler) {
	c.resignal = s
}

// HandleQueueChanged drains pairs from key. A spurious or duplicate signal finds
// fewer than two requests and returns nil.
func (c *Coordinator) HandleQueueChanged(ctx context.Context, key matchqueue.QueueKey) error {
	ctx, span := c.tracer.Start(ctx, "pairing.HandleQueueChanged",
		trace.WithAttributes(attribute.String("queue", key.String())))
	defer span.End()

	formed, contended := 0, 0
	for formed < c.maxPairs {
		pair, ok, err := c.source.TryMatch(ctx, key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "try match failed")
			return fmt.Errorf("failed to pair queue %s: %w", key, err)
		}
		if !ok {
			// two handlers that each restored a half pair leave the queue pairable
			// with no signal in flight, so look again before giving up
			if n, err := c.source.Size(ctx, key); err == nil && n >= 2 && contended < maxContendedRetries {
				contended++
				continue
			}
			span.SetAttributes(attribute.Int("pairs", formed))
			return nil
		}
		if err := c.settle(ctx, pair); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create match failed")
			return err
		}
		formed++
	}

	span.SetAttributes(attribute.Int("pairs", formed))
	if c.resignal != nil {
		// budget spent; another signal picks up what is left. Sent asynchronously
		// since the signaler may be fed to the worker running this handler.
		go func() {
			if err := c.resignal.QueueChanged(ctx, key); err != nil {
				c.logger.Warn("Failed to re-signal queue", zap.String("queue", key.String()), zap.Error(err))
			}
		}()
	}
	return nil
}

// settle persists the match for pair and tells both leaders. Persistence failure
// puts the pair back; notification failure is only logged.
func (c *Coordinator) settle(ctx context.Context, pair matchqueue.Pair) error {
	m, err := c.matches.CreatePairedMatch(ctx, pair.First, pair.Second)
	if err != nil {
		c.source.Restore(ctx, pair)
		return fmt.Errorf("failed to create paired match: %w", err)
	}

	first := c.describe(ctx, pair.First.TeamID)
	second := c.describe(ctx, pair.Second.TeamID)
	c.announce(ctx, m, first, second)
	c.announce(ctx, m, second, first)
	return nil
}

type side struct {
	teamID string
	name   string
	leader string
}

func (c *Coordinator) describe(ctx context.Context, teamID string) side {
	s := side{teamID: teamID, leader: matching.NoLeader}
	if team, err := c.teams.GetTeam(ctx, teamID); err == nil {
		s.name = team.Name
	} else {
		c.logger.Warn("Cannot resolve paired team", zap.String("team_id", teamID), zap.Error(err))
	}
	if leader, err := c.teams.GetLeaderID(ctx, teamID); err == nil {
		s.leader = leader
	} else {
		c.logger.Warn("Cannot resolve paired team leader", zap.String("team_id", teamID), zap.Error(err))
	}
	return s
}

func (c *Coordinator) announce(ctx context.Context, m *models.Matching, to, opponent side) {
	if to.leader == matching.NoLeader {
		c.logger.Warn("Paired team has no leader to notify",
			zap.String("team_id", to.teamID),
			zap.String("match_id", m.MatchID))
		return
	}
	status := models.MatchStatus{
		MatchID:      m.MatchID,
		State:        m.State,
		OpponentName: opponent.name,
		Event:        models.MatchPaired,
	}
	if err := c.notifier.SendToUser(ctx, to.leader, notification.TopicMatch, status); err != nil {
		c.logger.Warn("Failed to notify paired leader",
			zap.String("user_id", to.leader),
			zap.String("match_id", m.MatchID),
			zap.Error(err))
	}
}
