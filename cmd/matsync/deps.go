package main

import (
	"fmt"

	"github.com/matsync/matsync/internal/config"
	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/vault"
)

// athleteDeps bundles what athlete-side commands need.
type athleteDeps struct {
	cfg    config.Config
	client *queue.Client
	store  *vault.FS
}

func newAthleteDeps() (*athleteDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireAthlete(); err != nil {
		return nil, err
	}
	store, err := vault.OpenFS(cfg.Vault.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}
	return &athleteDeps{
		cfg:    cfg,
		client: queue.NewClient(cfg.Queue.BaseURL, cfg.Queue.AthleteToken),
		store:  store,
	}, nil
}

// coachDeps bundles what coach-side commands need.
type coachDeps struct {
	cfg    config.Config
	client *queue.CoachClient
	store  *vault.FS
}

func newCoachDeps() (*coachDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RequireCoach(); err != nil {
		return nil, err
	}
	store, err := vault.OpenFS(cfg.Vault.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}
	return &coachDeps{
		cfg:    cfg,
		client: queue.NewCoachClient(cfg.Queue.BaseURL, cfg.Queue.CoachToken),
		store:  store,
	}, nil
}
