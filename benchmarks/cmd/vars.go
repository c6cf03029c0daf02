package cmd

import "github.com/spf13/cobra"

var (
	savePath     string
	episodes     int
	bufferSize   int
	batchSize    int
	nSampledGoal int
	strategy     string
	offline      bool
	seed         uint64

	numBits        int
	learningStarts int
	alpha          float64
	gamma          float64
	temperature    float64
)

func AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&savePath, "save-path", "results", "Path to save results")
	cmd.PersistentFlags().IntVar(&episodes, "episodes", 5000, "Number of episodes")
	cmd.PersistentFlags().IntVar(&bufferSize, "buffer-size", 100000, "Replay buffer capacity in transitions")
	cmd.PersistentFlags().IntVar(&batchSize, "batch-size", 64, "Training batch size")
	cmd.PersistentFlags().IntVar(&nSampledGoal, "n-sampled-goal", 4, "Number of virtual goals per real transition")
	cmd.PersistentFlags().StringVar(&strategy, "strategy", "future", "Goal selection strategy")
	cmd.PersistentFlags().BoolVar(&offline, "offline", false, "Relabel at episode end instead of sample time")
	cmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Random seed (0 seeds from the clock)")
}
