package rl

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// VecEnv steps a set of environments in parallel. Finished episodes reset
// automatically so every slot always has a live observation.
type VecEnv struct {
	envs []Env
	obs  [][]float64
}

// NewVecEnv wraps the environments. All must share observation and action
// shapes.
func NewVecEnv(envs []Env) (*VecEnv, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("rl: vec env needs at least one environment")
	}
	for _, e := range envs[1:] {
		if e.ObsDim() != envs[0].ObsDim() || e.ActDim() != envs[0].ActDim() {
			return nil, fmt.Errorf("rl: mismatched env shapes")
		}
	}
	return &VecEnv{envs: envs}, nil
}

// Num returns the environment count.
func (v *VecEnv) Num() int { return len(v.envs) }

// ObsDim returns the shared observation width.
func (v *VecEnv) ObsDim() int { return v.envs[0].ObsDim() }

// ActDim returns the shared action width.
func (v *VecEnv) ActDim() int { return v.envs[0].ActDim() }

// Reset restarts every environment and returns the observations.
func (v *VecEnv) Reset() ([][]float64, error) {
	v.obs = make([][]float64, len(v.envs))
	g := new(errgroup.Group)
	for i, e := range v.envs {
		g.Go(func() error {
			o, err := e.Reset()
			if err != nil {
				return fmt.Errorf("reset env %d: %w", i, err)
			}
			v.obs[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return v.obs, nil
}

// StepResult is one environment's transition.
type StepResult struct {
	Obs    []float64
	Reward float64
	Done   bool
}

// Step applies one action per environment concurrently. Environments that
// finish are reset in place; Obs then holds the first observation of the
// next episode, with Done still marking the boundary.
func (v *VecEnv) Step(actions [][]float64) ([]StepResult, error) {
	if len(actions) != len(v.envs) {
		return nil, fmt.Errorf("rl: %d actions for %d environments", len(actions), len(v.envs))
	}
	results := make([]StepResult, len(v.envs))
	g := new(errgroup.Group)
	for i, e := range v.envs {
		g.Go(func() error {
			obs, reward, done, err := e.Step(actions[i])
			if err != nil {
				return fmt.Errorf("step env %d: %w", i, err)
			}
			if done {
				obs, err = e.Reset()
				if err != nil {
					return fmt.Errorf("reset env %d: %w", i, err)
				}
			}
			results[i] = StepResult{Obs: obs, Reward: reward, Done: done}
			v.obs[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
