package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/kcore"
	"gopkg.in/yaml.v3"
)

var (
	configURL    string
	logLevel     string
	snapshotURL  string
	traceFile    string
	workloadFlag workload
	timeoutFlag  time.Duration

	rootCmd = &cobra.Command{
		Use:           "kcore",
		Short:         "kcore - cooperative scheduler, semaphores and bounded channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a producer/consumer workload and save a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()
			report, err := workloadFlag.Run(ctx, srv.Runtime())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "received %d messages (%d bytes), snapshot %s\n", report.Messages, report.Bytes, report.SnapshotID)
			return nil
		},
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshots",
		Short: "List saved snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := newService(cmd.Context())
			if err != nil {
				return err
			}
			snapshots, err := srv.Runtime().Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			for _, snapshot := range snapshots {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tprocesses=%d\tchannels=%d\tswitches=%d\n",
					snapshot.ID, snapshot.TakenAt.Format(time.RFC3339), len(snapshot.Processes),
					len(snapshot.Channels), snapshot.Counters.ContextSwitches)
			}
			return nil
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(config)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kcore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kcore version %s\n", kcore.Version)
		},
	}
)

func loadConfig(ctx context.Context) (*kcore.Config, error) {
	config := kcore.DefaultConfig()
	if configURL != "" {
		var err error
		if config, err = kcore.LoadConfig(ctx, configURL); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if snapshotURL != "" {
		config.Snapshot.BaseURL = snapshotURL
	}
	if traceFile != "" {
		config.Tracing.Enabled = true
		config.Tracing.OutputFile = traceFile
	}
	return config, config.Validate()
}

func newService(ctx context.Context) (*kcore.Service, error) {
	config, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return kcore.New(kcore.WithConfig(config))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configURL, "config", "c", "", "configuration YAML URL (file, mem, s3 ...)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "DEBUG, INFO, WARN or ERROR")
	rootCmd.PersistentFlags().StringVar(&snapshotURL, "snapshot-url", "", "snapshot base URL")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "write OpenTelemetry spans to this file")

	runCmd.Flags().StringVar(&workloadFlag.Kind, "channel", "priority", "channel kind: fifo or priority")
	runCmd.Flags().IntVarP(&workloadFlag.Producers, "producers", "p", 2, "number of producer processes")
	runCmd.Flags().IntVarP(&workloadFlag.Messages, "messages", "n", 10, "messages per producer")
	runCmd.Flags().IntVar(&workloadFlag.Size, "size", 64, "channel capacity in bytes")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 30*time.Second, "workload deadline")

	rootCmd.AddCommand(runCmd, snapshotCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
