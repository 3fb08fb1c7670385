package engine

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/balaji-balu/offsetup/internal/report"
)

const (
	evStart   = "start"
	evSucceed = "succeed"
	evFail    = "fail"
	evSkip    = "skip"
)

// stepFSM tracks the state of one step.
type stepFSM struct {
	ID     string
	FSM    *fsm.FSM
	logger *zap.Logger
}

func newStepFSM(id string, logger *zap.Logger) *stepFSM {
	s := &stepFSM{ID: id, logger: logger}
	s.FSM = fsm.NewFSM(
		string(report.StatePending),
		fsm.Events{
			{Name: evStart, Src: []string{string(report.StatePending)}, Dst: string(report.StateRunning)},
			{Name: evSucceed, Src: []string{string(report.StateRunning)}, Dst: string(report.StateSucceeded)},
			{Name: evFail, Src: []string{string(report.StateRunning)}, Dst: string(report.StateFailed)},
			{Name: evSkip, Src: []string{string(report.StatePending), string(report.StateRunning)}, Dst: string(report.StateSkipped)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Debug("step transition",
					zap.String("step", s.ID),
					zap.String("event", e.Event),
					zap.String("src", e.Src),
					zap.String("dst", e.Dst),
				)
			},
		},
	)
	return s
}

// fire applies event. State changes must still be recorded after the run
// is cancelled, so ctx cancellation is not passed on.
func (s *stepFSM) fire(ctx context.Context, event string) {
	if err := s.FSM.Event(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Debug("step transition refused", zap.String("step", s.ID), zap.String("event", event), zap.Error(err))
	}
}

func (s *stepFSM) State() report.State { return report.State(s.FSM.Current()) }
