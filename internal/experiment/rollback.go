package experiment

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/types"
)

// RollbackHandler reverts the platform after a rollback guardrail fires.
// Its failure is recorded and never blocks the transition.
type RollbackHandler interface {
	Rollback(ctx context.Context, exp types.ChaosExperiment, triggers []types.Breach) error
}

type RollbackFunc func(ctx context.Context, exp types.ChaosExperiment, triggers []types.Breach) error

func (f RollbackFunc) Rollback(ctx context.Context, exp types.ChaosExperiment, triggers []types.Breach) error {
	return f(ctx, exp, triggers)
}

// FlagRollback disables every chaos flag, not only the experiment's own.
type FlagRollback struct {
	flags FlagController
}

func NewFlagRollback(flags FlagController) *FlagRollback {
	return &FlagRollback{flags: flags}
}

func (r *FlagRollback) Rollback(ctx context.Context, exp types.ChaosExperiment, triggers []types.Breach) error {
	count, err := r.flags.DisableAll("rollback of " + exp.ID)
	logrus.WithFields(logrus.Fields{
		"experiment_id":  exp.ID,
		"triggers":       len(triggers),
		"flags_disabled": count,
	}).Warn("Rollback executed")
	return err
}

// RollbackChain runs handlers in order and returns the first error after running all.
type RollbackChain []RollbackHandler

func (c RollbackChain) Rollback(ctx context.Context, exp types.ChaosExperiment, triggers []types.Breach) error {
	var firstErr error
	for _, h := range c {
		if err := h.Rollback(ctx, exp, triggers); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
