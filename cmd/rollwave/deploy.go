package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rollwave/rollwave"
	"github.com/rollwave/rollwave/internal/adapters/memory"
	"github.com/rollwave/rollwave/internal/adapters/store"
	"github.com/rollwave/rollwave/internal/ports"
)

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run one deployment against the simulated cluster",
		RunE:  runDeploy,
	}

	cmd.Flags().String("module", "demo", "module id to deploy")
	cmd.Flags().String("version", "1.0.0", "module version to deploy")
	cmd.Flags().String("strategy", "canary", "deployment strategy: direct, rolling, canary, blue_green, ab_testing")
	cmd.Flags().StringSlice("nodes", []string{"node-1", "node-2", "node-3", "node-4", "node-5"}, "target node ids")
	cmd.Flags().String("data-dir", "", "persist pipeline snapshots under this directory (in-memory when empty)")
	cmd.Flags().Duration("evaluation-period", 2*time.Second, "canary wait between waves")
	cmd.Flags().Int("batch-size", 2, "rolling batch size")
	cmd.Flags().String("fail-node", "", "script a deploy failure on this node")

	return cmd
}

func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ROLLWAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return nil, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	v, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(v.GetString("log-level"))

	nodes := v.GetStringSlice("nodes")
	cluster := memory.NewCluster(nodes, logger)
	if failNode := v.GetString("fail-node"); failNode != "" {
		cluster.FailDeploys(failNode, fmt.Errorf("scripted failure"))
	}

	var snapshotStore ports.ExecutionStore
	if dataDir := v.GetString("data-dir"); dataDir != "" {
		badgerStore, err := store.NewBadgerStore(dataDir, logger)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer badgerStore.Close()
		snapshotStore = badgerStore
	}

	engine, err := rollwave.New(cluster, rollwave.Options{
		Logger: logger,
		Store:  snapshotStore,
	})
	if err != nil {
		return err
	}

	req := rollwave.DeploymentRequest{
		ModuleID: v.GetString("module"),
		Version:  v.GetString("version"),
		Strategy: rollwave.StrategyType(v.GetString("strategy")),
		Config: rollwave.StrategyConfig{
			EvaluationPeriod: v.GetDuration("evaluation-period"),
			BatchSize:        v.GetInt("batch-size"),
		},
	}

	snapshots, unsubscribe, _ := engine.Subscribe(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range snapshots {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] seq=%d status=%s stage=%s\n",
				snap.ExecutionID, snap.SequenceNumber, snap.Status, snap.CurrentStage)
		}
	}()

	outcome, err := engine.Deploy(cmd.Context(), req, cluster.ActiveNodes())
	unsubscribe()
	wg.Wait()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nexecution %s finished: %s\n", outcome.ExecutionID, outcome.Status)
	if outcome.Reason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "reason: %s\n", outcome.Reason)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d of %d nodes\n", len(outcome.AppliedNodes()), len(nodes))
	for _, id := range nodes {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-10s version=%q\n", id, cluster.Version(id))
	}
	return nil
}
