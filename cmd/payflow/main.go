package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/neverDefined/payflow"
	"github.com/neverDefined/payflow/internal/config"
	"github.com/neverDefined/payflow/internal/logger"
	"github.com/neverDefined/payflow/report"
)

func main() {
	configPath := flag.String("config", "payflow.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.GetLogger().Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, os.Stdout)
	log := logger.GetLogger()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	plan, err := planFromConfig(cfg.Workflow)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Node.Manage {
		mgr := payflow.NewNodeManager(cfg.Node.Script)
		log.Info().Str("script", mgr.ScriptPath()).Msg("Starting bitcoind")
		if err := mgr.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := mgr.Stop(context.Background()); err != nil {
				log.Error().Err(err).Msg("Failed to stop bitcoind")
			}
		}()
	}

	sink := report.NewFileSink(cfg.Report.Path)
	if cfg.Report.Kafka.Enabled() {
		sink = report.NewKafkaSink(cfg.Report.Kafka.Broker, cfg.Report.Kafka.Topic)
	}
	reporter, err := report.New(cfg.Report.Format, sink)
	if err != nil {
		return err
	}
	defer reporter.Close()

	log.Info().
		Str("host", cfg.RPC.Host).
		Str("user", cfg.RPC.User).
		Str("network", cfg.RPC.Network).
		Msg("Connecting to node")
	node, err := payflow.Dial(payflow.ConnConfig{
		Host:    cfg.RPC.Host,
		User:    cfg.RPC.User,
		Pass:    cfg.RPC.Pass,
		Network: cfg.RPC.Network,
	})
	if err != nil {
		return err
	}
	defer node.Shutdown()

	summary, err := payflow.NewWorkflow(node, plan, reporter, *log).Run(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("txid", summary.TxID).
		Float64("fee", summary.Fee.ToBTC()).
		Int64("blockHeight", summary.BlockHeight).
		Msg("Run complete")
	return nil
}

func planFromConfig(w config.WorkflowConfig) (payflow.Plan, error) {
	amount, err := btcutil.NewAmount(w.SendAmount)
	if err != nil {
		return payflow.Plan{}, fmt.Errorf("workflow.send_amount: %w", err)
	}
	return payflow.Plan{
		MinerWallet:   w.MinerWallet,
		TraderWallet:  w.TraderWallet,
		MinerLabel:    w.MinerLabel,
		TraderLabel:   w.TraderLabel,
		MatureBlocks:  w.MatureBlocks,
		ConfirmBlocks: w.ConfirmBlocks,
		Amount:        amount,
		Method:        payflow.SendMethod(w.SendMethod),
	}, nil
}
