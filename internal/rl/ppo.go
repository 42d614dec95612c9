package rl

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"

	"github.com/avstack-dev/drivekit/internal/model"
)

// PPOParams configures the optimization.
type PPOParams struct {
	StepsPerRollout int // env steps collected per environment per update
	Epochs          int // optimization passes over each rollout
	MinibatchSize   int
	Gamma           float64 // discount
	Lambda          float64 // GAE smoothing
	ClipEps         float64 // surrogate clip range
	EntropyCoef     float64
	ValueCoef       float64
	LearningRate    float64
	MaxGradNorm     float64
	Updates         int // number of rollout+update cycles
	LogEvery        int // updates between log lines, 0 disables
	Seed            int64
}

// DefaultPPOParams returns the settings used by the example RL trainer.
func DefaultPPOParams() PPOParams {
	return PPOParams{
		StepsPerRollout: 64,
		Epochs:          4,
		MinibatchSize:   64,
		Gamma:           0.99,
		Lambda:          0.95,
		ClipEps:         0.2,
		EntropyCoef:     0.01,
		ValueCoef:       0.5,
		LearningRate:    3e-4,
		MaxGradNorm:     0.5,
		Updates:         50,
		LogEvery:        10,
		Seed:            1,
	}
}

// transition is one recorded env step.
type transition struct {
	obs    []float64
	action []float64
	logp   float64
	value  float64
	reward float64
	done   bool

	advantage float64
	ret       float64
}

// UpdateStats summarises one PPO update.
type UpdateStats struct {
	Update     int
	MeanReward float64 // average per-step reward in the rollout
	PolicyLoss float64
	ValueLoss  float64
	Entropy    float64
	ClipFrac   float64
}

// PPO optimizes a Gaussian policy and a value net against a vectorized
// environment with the clipped-surrogate objective.
type PPO struct {
	Params PPOParams
	Policy *model.GaussianPolicy
	Value  *model.ValueNet
	Envs   *VecEnv

	policyOpt model.Optimizer
	valueOpt  model.Optimizer
	rng       *rand.Rand
}

// NewPPO wires the optimizer state.
func NewPPO(p PPOParams, policy *model.GaussianPolicy, value *model.ValueNet, envs *VecEnv) *PPO {
	return &PPO{
		Params:    p,
		Policy:    policy,
		Value:     value,
		Envs:      envs,
		policyOpt: model.NewAdam(p.LearningRate),
		valueOpt:  model.NewAdam(p.LearningRate),
		rng:       rand.New(rand.NewSource(p.Seed)),
	}
}

// Run executes Params.Updates collect/optimize cycles and returns per-update
// statistics. Honors ctx cancellation between updates.
func (p *PPO) Run(ctx context.Context) ([]UpdateStats, error) {
	if _, err := p.Envs.Reset(); err != nil {
		return nil, fmt.Errorf("initial reset: %w", err)
	}
	var stats []UpdateStats
	for u := 1; u <= p.Params.Updates; u++ {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		batch, meanReward, err := p.collect()
		if err != nil {
			return stats, fmt.Errorf("rollout %d: %w", u, err)
		}
		st := p.optimize(batch)
		st.Update = u
		st.MeanReward = meanReward
		stats = append(stats, st)
		if p.Params.LogEvery > 0 && u%p.Params.LogEvery == 0 {
			log.Printf("ppo update %d/%d: reward %.4f policy %.4f value %.4f entropy %.4f",
				u, p.Params.Updates, st.MeanReward, st.PolicyLoss, st.ValueLoss, st.Entropy)
		}
	}
	return stats, nil
}

// collect gathers StepsPerRollout transitions per environment and computes
// GAE advantages and returns.
func (p *PPO) collect() ([]transition, float64, error) {
	n := p.Envs.Num()
	steps := p.Params.StepsPerRollout
	// per-env trajectories, flattened after advantage computation
	trajs := make([][]transition, n)

	obs := make([][]float64, n)
	copy(obs, p.Envs.obs)

	var rewardSum float64
	for t := 0; t < steps; t++ {
		actions := make([][]float64, n)
		trs := make([]transition, n)
		for i := range obs {
			mean := p.Policy.Forward(obs[i])
			action := p.Policy.Sample(mean, p.rng)
			trs[i] = transition{
				obs:    obs[i],
				action: action,
				logp:   p.Policy.LogProb(mean, action),
				value:  p.Value.Forward(obs[i]),
			}
			actions[i] = action
		}
		results, err := p.Envs.Step(actions)
		if err != nil {
			return nil, 0, err
		}
		for i, r := range results {
			trs[i].reward = r.Reward
			trs[i].done = r.Done
			rewardSum += r.Reward
			trajs[i] = append(trajs[i], trs[i])
			obs[i] = r.Obs
		}
	}

	var batch []transition
	for i := range trajs {
		bootstrap := 0.0
		if last := trajs[i][len(trajs[i])-1]; !last.done {
			bootstrap = p.Value.Forward(obs[i])
		}
		gae(trajs[i], bootstrap, p.Params.Gamma, p.Params.Lambda)
		batch = append(batch, trajs[i]...)
	}
	normalizeAdvantages(batch)
	return batch, rewardSum / float64(n*steps), nil
}

// gae fills advantages and returns over one trajectory, bootstrapping the
// value of the state after the last step unless the episode ended there.
func gae(traj []transition, bootstrap, gamma, lambda float64) {
	adv := 0.0
	nextValue := bootstrap
	for t := len(traj) - 1; t >= 0; t-- {
		mask := 1.0
		if traj[t].done {
			mask = 0
		}
		delta := traj[t].reward + gamma*nextValue*mask - traj[t].value
		adv = delta + gamma*lambda*mask*adv
		traj[t].advantage = adv
		traj[t].ret = adv + traj[t].value
		nextValue = traj[t].value
	}
}

func normalizeAdvantages(batch []transition) {
	if len(batch) < 2 {
		return
	}
	var mean float64
	for _, tr := range batch {
		mean += tr.advantage
	}
	mean /= float64(len(batch))
	var variance float64
	for _, tr := range batch {
		d := tr.advantage - mean
		variance += d * d
	}
	std := math.Sqrt(variance/float64(len(batch))) + 1e-8
	for i := range batch {
		batch[i].advantage = (batch[i].advantage - mean) / std
	}
}

// optimize runs Epochs passes of minibatch clipped-surrogate updates.
func (p *PPO) optimize(batch []transition) UpdateStats {
	pp := p.Params
	var stats UpdateStats
	var samples, clipped int

	order := make([]int, len(batch))
	for i := range order {
		order[i] = i
	}
	for epoch := 0; epoch < pp.Epochs; epoch++ {
		p.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for lo := 0; lo < len(order); lo += pp.MinibatchSize {
			hi := lo + pp.MinibatchSize
			if hi > len(order) {
				hi = len(order)
			}
			mb := order[lo:hi]

			p.Policy.ZeroGrad()
			p.Value.ZeroGrad()
			for _, idx := range mb {
				tr := batch[idx]
				mean := p.Policy.Forward(tr.obs)
				logp := p.Policy.LogProb(mean, tr.action)
				ratio := math.Exp(logp - tr.logp)

				// clipped surrogate: the gradient flows through the
				// unclipped ratio only when it is the active branch
				surr := ratio * tr.advantage
				clippedRatio := clamp(ratio, 1-pp.ClipEps, 1+pp.ClipEps)
				surrClipped := clippedRatio * tr.advantage

				var dLogp float64
				if surr <= surrClipped {
					dLogp = -ratio * tr.advantage // minimize -surrogate
					stats.PolicyLoss += -surr
				} else {
					stats.PolicyLoss += -surrClipped
					clipped++
				}
				p.Policy.Backward(mean, tr.action, dLogp, -pp.EntropyCoef)

				vLoss := p.Value.TrainStep(tr.obs, tr.ret)
				stats.ValueLoss += vLoss
				samples++
			}
			scale := 1 / float64(len(mb))
			model.ScaleGrads(p.Policy.Params(), scale)
			model.ScaleGrads(p.Value.Params(), scale*pp.ValueCoef)
			model.ClipGradNorm(p.Policy.Params(), pp.MaxGradNorm)
			model.ClipGradNorm(p.Value.Params(), pp.MaxGradNorm)
			p.policyOpt.Step(p.Policy.Params())
			p.valueOpt.Step(p.Value.Params())
		}
	}

	if samples > 0 {
		stats.PolicyLoss /= float64(samples)
		stats.ValueLoss /= float64(samples)
		stats.ClipFrac = float64(clipped) / float64(samples)
	}
	stats.Entropy = p.Policy.Entropy()
	return stats
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
