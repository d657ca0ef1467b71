package main

import (
	"fmt"

	"github.com/aretw0/conduit/internal/loader"
	"github.com/aretw0/conduit/internal/validator"
	"github.com/aretw0/conduit/pkg/nodes"
	"github.com/aretw0/conduit/pkg/registry"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <graph.yaml>",
	Short: "Check the graph for consistency",
	Long: `Instantiates every node of the graph and reports unknown node types,
bad parameters, dangling or incompatible connections and unconnected
mandatory inputs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runValidate(args[0]); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Graph is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path string) error {
	spec, err := loader.Load(path)
	if err != nil {
		return err
	}

	reg := registry.NewRegistry()
	if err := reg.Init(); err != nil {
		return err
	}
	if err := nodes.Register(reg); err != nil {
		return err
	}
	return validator.ValidateGraph(spec, reg)
}
