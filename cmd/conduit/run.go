package main

import (
	"github.com/aretw0/conduit/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <graph.yaml>",
	Short: "Run a graph",
	Long: `Loads the graph file, validates it and runs it until interrupted,
until --duration elapsed or until a node violates the protocol.

Snapshots are encrypted when CONDUIT_SNAPSHOT_KEY holds a base64 encoded
32 byte key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		opts := cli.RunOptions{GraphPath: args[0]}
		opts.Duration, _ = flags.GetDuration("duration")
		opts.Addr, _ = flags.GetString("serve")
		opts.LogLevel, _ = flags.GetString("log-level")
		opts.LogFormat, _ = flags.GetString("log-format")
		opts.SnapshotDir, _ = flags.GetString("snapshot-dir")
		opts.RedisURL, _ = flags.GetString("redis")
		opts.Resume, _ = flags.GetBool("resume")
		opts.Redact, _ = flags.GetStringSlice("redact")
		opts.Threadless, _ = flags.GetBool("threadless")
		opts.Strict, _ = flags.GetBool("strict")
		opts.Paused, _ = flags.GetBool("paused")
		opts.Watch, _ = flags.GetBool("watch")
		opts.Debug, _ = flags.GetBool("debug")
		if flags.Changed("tick") {
			hz, _ := flags.GetFloat64("tick")
			opts.Frequency = &hz
		}
		key, err := cli.SnapshotKeyFromEnv()
		if err != nil {
			return err
		}
		opts.EncryptionKey = key
		opts.Output = cmd.OutOrStdout()
		opts.Messages = cmd.ErrOrStderr()

		return cli.Execute(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	runCmd.Flags().String("serve", "", "Serve the HTTP API on this address, e.g. :8080")
	runCmd.Flags().String("snapshot-dir", "", "Persist snapshots as YAML files in this directory")
	runCmd.Flags().String("redis", "", "Persist snapshots in Redis (redis://host:port/db)")
	runCmd.Flags().Bool("resume", false, "Resume from the stored snapshot of the graph")
	runCmd.Flags().StringSlice("redact", nil, "Mask parameters whose names match these patterns in snapshots")
	runCmd.Flags().Float64("tick", 0, "Override the tick frequency in Hz (0 = manual, <0 = free-running)")
	runCmd.Flags().Bool("threadless", false, "Run every node on the scheduler goroutine")
	runCmd.Flags().Bool("strict", false, "Halt on misaligned input or output sequences")
	runCmd.Flags().Bool("paused", false, "Start paused")
	runCmd.Flags().BoolP("watch", "w", false, "Reload the graph when the file changes")
	runCmd.Flags().Bool("debug", false, "Log every lifecycle event")
}
