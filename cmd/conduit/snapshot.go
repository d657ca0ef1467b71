package main

import (
	"fmt"

	"github.com/aretw0/conduit/internal/cli"
	"github.com/aretw0/conduit/internal/loader"
	"github.com/aretw0/conduit/pkg/adapters/file"
	"github.com/aretw0/conduit/pkg/snapshot"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage stored graph snapshots",
	Long:  `List, inspect, and remove snapshots stored by 'run --snapshot-dir'.`,
}

var snapshotLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all stored snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := getManager(cmd)
		if err != nil {
			return err
		}
		ids, err := manager.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing snapshots: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No snapshots found.")
			return nil
		}
		fmt.Fprintln(out, "Snapshots:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect <graph-id>",
	Short: "Print a stored snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := getManager(cmd)
		if err != nil {
			return err
		}
		snap, err := manager.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading snapshot '%s': %w", args[0], err)
		}
		data, err := yaml.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <graph-id> <graph.yaml>",
	Short: "Write the graph of a snapshot, with its current parameters, to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := getManager(cmd)
		if err != nil {
			return err
		}
		snap, err := manager.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading snapshot '%s': %w", args[0], err)
		}
		if err := loader.Save(args[1], &snap.Spec); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported '%s' to %s\n", args[0], args[1])
		return nil
	},
}

var snapshotRmCmd = &cobra.Command{
	Use:   "rm <graph-id>...",
	Short: "Remove one or more snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := getManager(cmd)
		if err != nil {
			return err
		}
		var failed int
		for _, id := range args {
			if err := manager.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed snapshot '%s'\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d snapshot(s) could not be removed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.PersistentFlags().String("snapshot-dir", "", "Snapshot directory (default .conduit/snapshots)")
	snapshotCmd.AddCommand(snapshotLsCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotRmCmd)
}

func getManager(cmd *cobra.Command) (*snapshot.Manager, error) {
	dir, _ := cmd.Flags().GetString("snapshot-dir")
	key, err := cli.SnapshotKeyFromEnv()
	if err != nil {
		return nil, err
	}
	return snapshot.NewManager(cli.WrapStore(file.New(dir), key, nil)), nil
}
