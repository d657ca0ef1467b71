package main

import (
	"fmt"
	"io"

	"github.com/aretw0/conduit"
	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <graph.yaml>",
	Short: "Export the graph visualization",
	Long:  `Builds the graph without running it and outputs a Mermaid diagram (graph LR).`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := conduit.Open(args[0],
			conduit.WithLogger(logging.NewNop()),
			conduit.WithOutput(io.Discard),
		)
		if err != nil {
			return err
		}
		defer eng.Stop()

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(eng.Inspect(), nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
