package service

import (
	"context"
	"fmt"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/types"
	"github.com/okian/lineup/pkg/logger"
)

// Simulate joins n synthetic passengers to lineID through the normal join
// path: 70% STANDARD, 20% ELEVATED, 10% PREMIUM, 15% needing assistance.
// n <= 0 means the default batch; n is capped by the configured maximum.
func (s *Service) Simulate(ctx context.Context, lineID string, n int) ([]types.Ticket, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetLine(ctx, lineID); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	if n <= 0 {
		n = defaultSimulateCount
	}
	if n > s.simulateMax {
		n = s.simulateMax
	}

	tickets := make([]types.Ticket, 0, n)
	for range n {
		class, assist := s.synthetic()
		t, err := s.join(ctx, types.JoinRequest{
			SubjectID:       "bot-" + s.newID(),
			LineID:          lineID,
			ServiceClass:    class,
			NeedsAssistance: assist,
		})
		if err != nil {
			return tickets, fmt.Errorf("simulate: %w", err)
		}
		tickets = append(tickets, t)
	}

	s.publish(ctx, model.NewUpdated(lineID))
	s.logger.Info(ctx, "simulated passengers", logger.String("line_id", lineID), logger.Int("count", n))
	return tickets, nil
}

func (s *Service) synthetic() (model.ServiceClass, bool) {
	s.randMu.Lock()
	defer s.randMu.Unlock()

	class := model.ClassStandard
	switch r := s.rnd.Float64(); {
	case r >= 0.9:
		class = model.ClassPremium
	case r >= 0.7:
		class = model.ClassElevated
	}
	return class, s.rnd.Float64() >= 0.85
}
