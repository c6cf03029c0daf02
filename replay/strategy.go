package replay

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStrategy = errors.New("unknown goal selection strategy")

// GoalSelectionStrategy determines where substitute desired goals are drawn
// from when transitions are relabeled.
type GoalSelectionStrategy int

const (
	// Final replays with the achieved goal at the last step of the episode.
	Final GoalSelectionStrategy = iota
	// Future replays with an achieved goal observed at a step strictly after
	// the current one, within the same episode.
	Future
	// Episode replays with an achieved goal drawn from anywhere in the same
	// episode.
	Episode
	// PastDesired replays with a desired goal recorded at the completion of a
	// previous episode. Offline sampling only.
	PastDesired
	// PastDesiredSuccess is PastDesired with a ranking stage that keeps only
	// the relabeled episodes with the highest summed reward. Offline only.
	PastDesiredSuccess
)

func ParseGoalSelectionStrategy(s string) (GoalSelectionStrategy, error) {
	switch strings.ToLower(s) {
	case "final":
		return Final, nil
	case "future":
		return Future, nil
	case "episode":
		return Episode, nil
	case "episode_past_desired":
		return PastDesired, nil
	case "episode_past_desired_success":
		return PastDesiredSuccess, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

func (g GoalSelectionStrategy) String() string {
	switch g {
	case Final:
		return "final"
	case Future:
		return "future"
	case Episode:
		return "episode"
	case PastDesired:
		return "episode_past_desired"
	case PastDesiredSuccess:
		return "episode_past_desired_success"
	default:
		return fmt.Sprintf("unknown(%d)", int(g))
	}
}

func (g GoalSelectionStrategy) valid() bool {
	return g >= Final && g <= PastDesiredSuccess
}

// historyBased reports whether substitute goals come from the desired-goal
// history store instead of the sampled episode itself.
func (g GoalSelectionStrategy) historyBased() bool {
	return g == PastDesired || g == PastDesiredSuccess
}
