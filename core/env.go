package core

// InfoTimeLimitTruncated is the reserved info key marking terminations caused
// by a time limit rather than by the task itself. A non-zero value is true.
const InfoTimeLimitTruncated = "TimeLimit.truncated"

// Info carries the auxiliary payload attached to a single environment step.
// It is stored alongside transitions and handed back to the environment when
// rewards are recomputed for substituted goals.
type Info map[string]float64

func (i Info) TimeLimitTruncated() bool {
	return i != nil && i[InfoTimeLimitTruncated] != 0
}

func (i Info) Copy() Info {
	if i == nil {
		return nil
	}
	out := make(Info, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}

// GoalEnvSpec declares the shapes a goal-conditioned environment produces.
// MaxEpisodeSteps is 0 when the environment declares no step limit.
type GoalEnvSpec struct {
	ObsDim          int
	GoalDim         int
	ActionDim       int
	NumEnvs         int
	MaxEpisodeSteps int
}

// GoalEnv is the contract the replay buffers consume from an environment.
// ComputeReward is called synchronously during relabeling with the achieved
// goal of the next observation and the substituted desired goal.
type GoalEnv interface {
	Spec() GoalEnvSpec
	ComputeReward(achievedGoal, desiredGoal []float64, info Info) float64
}

// GoalModifierEnv lets the reward computation also overwrite the desired goal
// of a relabeled transition, for tasks where the replay goal depends on state.
// The strategy-selected goal is computed first and passed in; the returned
// goal replaces it. Consulted only when the buffer enables ModifyGoal.
type GoalModifierEnv interface {
	GoalEnv
	ComputeRewardAndGoal(achievedGoal, desiredGoal []float64, info Info) (float64, []float64)
}
