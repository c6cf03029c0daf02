package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zeu5/her-replay/benchmarks/bitflip"
)

func BitflipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bitflip",
		Short: "Run the bit-flipping benchmark",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				<-sigCh
				cancel()
			}()

			return bitflip.Run(ctx, &bitflip.Config{
				NumBits:        numBits,
				Episodes:       episodes,
				BufferSize:     bufferSize,
				BatchSize:      batchSize,
				NSampledGoal:   nSampledGoal,
				Strategy:       strategy,
				Offline:        offline,
				LearningStarts: learningStarts,

				Alpha:       alpha,
				Gamma:       gamma,
				Temperature: temperature,

				Seed:     seed,
				SavePath: savePath,
			})
		},
	}
	cmd.Flags().IntVar(&numBits, "num-bits", 8, "Number of bits to flip")
	cmd.Flags().IntVar(&learningStarts, "learning-starts", 100, "Transitions collected before training starts")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.1, "Q-learning step size")
	cmd.Flags().Float64Var(&gamma, "gamma", 0.98, "Discount factor")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.5, "Softmax temperature")
	return cmd
}
