package engine

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/skill"
)

// ExecuteMany executes a group of runs under the given strategy and blocks
// until every member reaches a terminal status. Results come back in request
// order. A halted chain returns only the attempted members, through the
// first non-success; the skipped tail is finalized cancelled in the store
// but not reported back. A resolution or validation failure on any member
// fails the whole request before any run record is created. An empty
// strategy is accepted for single-run requests only.
func (e *Engine) ExecuteMany(ctx context.Context, strategy string, reqs []RunRequest) ([]*model.Run, error) {
	runs, versions, err := e.prepareGroup(ctx, strategy, reqs)
	if err != nil {
		return nil, err
	}
	e.executeGroup(ctx, strategy, runs, versions)
	e.reloadRuns(runs)
	if strategy == model.StrategyChain {
		runs = attemptedPrefix(runs)
	}
	return runs, nil
}

// attemptedPrefix cuts a chain's result list after the first non-success
// member. Everything past that point never started.
func attemptedPrefix(runs []*model.Run) []*model.Run {
	for i, r := range runs {
		if r.Status != model.StatusSuccess {
			return runs[:i+1]
		}
	}
	return runs
}

// Submit creates queued run records for the whole group and returns their IDs
// immediately; execution proceeds in a background goroutine. Chained runs
// that never start because an earlier member failed are finalized as
// cancelled.
func (e *Engine) Submit(ctx context.Context, strategy string, reqs []RunRequest) ([]string, error) {
	runs, versions, err := e.prepareGroup(ctx, strategy, reqs)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.executeGroup(context.Background(), strategy, runs, versions)
	}()
	return ids, nil
}

// prepareGroup resolves every member's skill version, validates what can be
// validated up front, and creates the queued run records. Inputs of chained
// members after the first are only resolved at execution time, once upstream
// outputs are known.
func (e *Engine) prepareGroup(ctx context.Context, strategy string, reqs []RunRequest) ([]*model.Run, []*model.SkillVersion, error) {
	if e.closed.Load() {
		return nil, nil, ErrShuttingDown
	}
	if len(reqs) == 0 {
		return nil, nil, ErrEmptyGroup
	}
	if strategy == "" && len(reqs) > 1 {
		return nil, nil, fmt.Errorf("%w: multi-run request needs one", ErrInvalidStrategy)
	}
	if strategy != "" && !model.ValidStrategy(strategy) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategy)
	}

	versions := make([]*model.SkillVersion, len(reqs))
	inputs := make([]map[string]any, len(reqs))
	for i, req := range reqs {
		v, err := e.resolve(ctx, req.Skill)
		if err != nil {
			return nil, nil, err
		}
		versions[i] = v

		if strategy == model.StrategyChain && i > 0 {
			inputs[i] = req.Input
			continue
		}
		resolved, err := skill.ResolveInputs(v.Inputs, req.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("run %d (%s): %w", i, req.Skill, err)
		}
		inputs[i] = resolved
	}

	groupID := ""
	if len(reqs) > 1 {
		groupID = model.NewGroupID()
	}

	runs := make([]*model.Run, len(reqs))
	for i, req := range reqs {
		run, err := e.createRun(ctx, versions[i], inputs[i], req.TimeoutS, groupID, strategy)
		if err != nil {
			for _, created := range runs[:i] {
				e.finalizeNoStart(created, model.StatusCancelled, "group creation failed")
			}
			return nil, nil, err
		}
		runs[i] = run
	}
	return runs, versions, nil
}

// executeGroup drives every member of a prepared group to a terminal status.
func (e *Engine) executeGroup(ctx context.Context, strategy string, runs []*model.Run, versions []*model.SkillVersion) {
	if strategy == model.StrategyParallel {
		var wg sync.WaitGroup
		for i := range runs {
			wg.Add(1)
			go func(run *model.Run, v *model.SkillVersion) {
				defer wg.Done()
				e.executeRun(ctx, run, v)
			}(runs[i], versions[i])
		}
		wg.Wait()
		return
	}
	e.executeChain(ctx, runs, versions)
}

// executeChain runs members sequentially, overlaying each success's outputs
// onto the next member's input. The first non-success halts the chain and
// the remaining members are finalized as cancelled without starting.
func (e *Engine) executeChain(ctx context.Context, runs []*model.Run, versions []*model.SkillVersion) {
	carried := make(map[string]any)
	haltMsg := ""

	for i := range runs {
		if haltMsg != "" {
			e.finalizeNoStart(runs[i], model.StatusCancelled, haltMsg)
			continue
		}

		if i > 0 {
			merged := mergeInputs(runs[i].Input, carried)
			resolved, err := skill.ResolveInputs(versions[i].Inputs, merged)
			if err != nil {
				e.finalizeNoStart(runs[i], model.StatusError, err.Error())
				haltMsg = fmt.Sprintf("chain halted: run %s failed input validation", runs[i].ID)
				continue
			}
			runs[i].Input = resolved
			if err := e.store.SetRunInput(context.Background(), runs[i].ID, resolved); err != nil {
				e.logger.Error("failed to record chained input", "run_id", runs[i].ID, "error", err)
			}
		}

		e.executeRun(ctx, runs[i], versions[i])

		if runs[i].Status != model.StatusSuccess {
			haltMsg = fmt.Sprintf("chain halted: run %s finished %s", runs[i].ID, runs[i].Status)
			continue
		}
		maps.Copy(carried, runs[i].Outputs)
	}
}

// mergeInputs overlays carried outputs onto a member's declared input.
// Collisions resolve in favor of the outputs, so upstream results flow
// through the chain.
func mergeInputs(base, carried map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(carried))
	maps.Copy(merged, base)
	maps.Copy(merged, carried)
	return merged
}

// reloadRuns refreshes each run from the store so callers see the persisted
// timestamps alongside the in-memory outcome.
func (e *Engine) reloadRuns(runs []*model.Run) {
	for i := range runs {
		final, err := e.store.GetRun(context.Background(), runs[i].ID)
		if err != nil {
			e.logger.Error("failed to reload run", "run_id", runs[i].ID, "error", err)
			continue
		}
		runs[i] = final
	}
}
