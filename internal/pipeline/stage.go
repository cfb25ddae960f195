package pipeline

import (
	"go.uber.org/zap"

	"paperflow/internal/domain"
	"paperflow/internal/logging"
)

// stages tracks one chunk's position in the driver state machine. A chunk
// starts READING and either loops back to READING or ends FAILED.
type stages struct {
	current domain.Stage
	logger  *zap.Logger
}

func newStages(logger *zap.Logger) *stages {
	return &stages{current: domain.StageReading, logger: logger}
}

func (s *stages) to(next domain.Stage) {
	if !s.current.CanTransition(next) {
		s.logger.DPanic("invalid stage transition",
			zap.String("from", string(s.current)),
			zap.String(logging.FieldStage, string(next)),
		)
	}
	s.current = next
}

// fail moves to FAILED and returns the stage that failed.
func (s *stages) fail() domain.Stage {
	failed := s.current
	s.to(domain.StageFailed)
	return failed
}
