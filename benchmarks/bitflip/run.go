package bitflip

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/gosuri/uilive"
	"github.com/rs/zerolog"

	"github.com/zeu5/her-replay/replay"
	"github.com/zeu5/her-replay/util"
)

type Config struct {
	NumBits        int
	Episodes       int
	BufferSize     int
	BatchSize      int
	NSampledGoal   int
	Strategy       string
	Offline        bool
	LearningStarts int

	Alpha       float64
	Gamma       float64
	Temperature float64

	Seed     uint64
	SavePath string
}

type dataset struct {
	Episodes     int       `json:"episodes"`
	Successes    int       `json:"successes"`
	SuccessRates []float64 `json:"success_rates"`
}

// Run trains a tabular softmax policy on the bit-flipping task, feeding a
// HerReplayBuffer and drawing relabeled batches from it.
func Run(ctx context.Context, config *Config) error {
	strategy, err := replay.ParseGoalSelectionStrategy(config.Strategy)
	if err != nil {
		return err
	}

	env := New(config.NumBits, config.Seed)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	params := replay.HerParams{
		BufferSize:     config.BufferSize,
		NSampledGoal:   config.NSampledGoal,
		Strategy:       strategy,
		OnlineSampling: !config.Offline,

		HandleTimeoutTermination: true,
		Seed:                     config.Seed,
		Logger:                   &logger,
	}
	if config.Offline {
		params.ReplayBuffer = replay.NewReplayBuffer(config.BufferSize, env.Spec(), config.Seed)
	}
	buffer, err := replay.NewHerReplayBuffer(env, params)
	if err != nil {
		return err
	}

	policy := NewSoftMaxPolicy(config.NumBits, config.Alpha, config.Gamma, config.Temperature, config.Seed)

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	result := &dataset{}
	windowSuccesses := 0
	for episode := 0; episode < config.Episodes; episode++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		obs := env.Reset()
		solved := false
		for {
			action := policy.PickAction(obs)
			nextObs, reward, done, info := env.Step(action)
			if err := buffer.Add(obs, nextObs, []float64{float64(action)}, reward, done, info); err != nil {
				return err
			}
			obs = nextObs
			if done {
				solved = reward == 0
				break
			}
		}
		if solved {
			result.Successes++
			windowSuccesses++
		}
		result.Episodes++

		if buffer.Size() >= config.LearningStarts || (config.Offline && episode > 0) {
			batch, err := buffer.Sample(config.BatchSize, nil)
			if err != nil {
				return err
			}
			policy.Update(batch)
		}

		if (episode+1)%100 == 0 {
			rate := float64(windowSuccesses) / 100
			result.SuccessRates = append(result.SuccessRates, rate)
			windowSuccesses = 0
			fmt.Fprintf(
				writer,
				"Bitflip(%d), Episode %d/%d, Buffer: %d, Success rate: %.2f\n",
				config.NumBits, episode+1, config.Episodes, buffer.Size(), rate,
			)
		}
	}

	if config.SavePath != "" {
		return util.SaveJson(path.Join(config.SavePath, "bitflip.json"), result)
	}
	return nil
}
