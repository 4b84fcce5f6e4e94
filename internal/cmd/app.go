package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/agent"
	"github.com/harrison/foreman/internal/config"
	"github.com/harrison/foreman/internal/engine"
	"github.com/harrison/foreman/internal/filelock"
	"github.com/harrison/foreman/internal/logger"
	"github.com/harrison/foreman/internal/session"
	"github.com/harrison/foreman/internal/store"
)

// app holds the wired-up services shared by the execution commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	console *logger.ConsoleLogger
	fileLog *logger.FileLogger
	events  *engine.MultiSink
}

// newApp loads configuration, opens the store, and sets up logging.
// Callers must Close it.
func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = filepath.Join(".foreman", "config.yaml")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	console := logger.NewConsoleLogger(cmd.OutOrStdout(), cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	return &app{
		cfg:     cfg,
		store:   st,
		console: console,
		fileLog: fileLog,
		events:  engine.NewMultiSink(console, fileLog),
	}, nil
}

func (a *app) Close() {
	if a.fileLog != nil {
		a.fileLog.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// agentService builds the agent execution service for a repository checkout.
func (a *app) agentService(repoDir string) *agent.Service {
	invoker := agent.NewInvoker()
	if a.cfg.AgentBin != "" {
		invoker.ClaudePath = a.cfg.AgentBin
	}

	var gates agent.GateRunner
	if a.cfg.Gates.Enabled {
		var commands []agent.GateCommand
		for _, gc := range a.cfg.Gates.Commands {
			commands = append(commands, agent.GateCommand{
				Name:    gc.Name,
				Command: gc.Command,
				Args:    gc.Args,
			})
		}
		gates = agent.NewCommandGates(commands)
	}

	return agent.NewService(a.store, invoker, agent.NewGitInspector(), gates, agent.ServiceConfig{
		WorkDir:         repoDir,
		RunTimeout:      a.cfg.RunTimeout,
		RequireApproval: a.cfg.RequireApproval,
	})
}

// engineFor builds an engine bound to the given agent service.
func (a *app) engineFor(svc *agent.Service) *engine.Engine {
	sessions := session.NewProvider(a.store, a.cfg.SessionIdleTimeout)
	return engine.New(a.store, svc, sessions, a.events, engine.Config{
		PollInterval: a.cfg.PollInterval,
		PollTimeout:  a.cfg.PollTimeout,
		MaxParallel:  a.cfg.MaxParallel,
	})
}

// executePlan runs or resumes a plan under a cross-process lease, with
// SIGINT/SIGTERM cancelling execution and the health monitor sweeping in the
// background.
func (a *app) executePlan(ctx context.Context, planID, repoDir string, resume bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lease, err := filelock.PlanLease(a.cfg.LeaseDir, planID)
	if err != nil {
		return err
	}
	acquired, err := lease.TryLock()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("plan %s is already being executed by another foreman process", planID)
	}
	defer lease.Unlock()

	svc := a.agentService(repoDir)
	eng := a.engineFor(svc)

	// Reconcile plans a crashed process left running before touching this
	// one. Tasks with live runs stay attached and are re-polled on resume.
	monitor := engine.NewMonitor(a.store, svc, a.events, a.cfg.Monitor.Interval)
	if err := monitor.SweepInFlight(ctx); err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}

	if a.cfg.Monitor.Enabled {
		monitorCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go monitor.Start(monitorCtx)
	}

	if resume {
		err = eng.Resume(ctx, planID)
	} else {
		err = eng.Execute(ctx, planID)
	}

	// Let in-flight agent runs record their final state before exit.
	svc.Wait()
	return err
}
