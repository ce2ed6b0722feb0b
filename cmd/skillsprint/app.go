package main

import (
	"fmt"

	"github.com/skillsprint/coach/internal/composer"
	"github.com/skillsprint/coach/internal/config"
	"github.com/skillsprint/coach/internal/content"
	"github.com/skillsprint/coach/internal/fallback"
	"github.com/skillsprint/coach/internal/gateway"
	"github.com/skillsprint/coach/internal/intent"
	"github.com/skillsprint/coach/internal/pipeline"
	"github.com/skillsprint/coach/internal/sprint"
	"github.com/skillsprint/coach/internal/topic"
)

// app is the in-process pipeline shared by serve, mcp and the offline
// commands.
type app struct {
	cfg        config.Config
	pack       *content.Pack
	topics     *topic.Table
	classifier *intent.Classifier
	prompts    *composer.Builder
	gateway    *gateway.Gateway
	coach      *pipeline.Coach
	sprints    *sprint.Generator
}

func newApp(cfg config.Config) (*app, error) {
	pack, err := content.Load(cfg.Content.Path)
	if err != nil {
		return nil, fmt.Errorf("loading content pack: %w", err)
	}
	topics, err := topic.NewTable(pack.Topics)
	if err != nil {
		return nil, fmt.Errorf("building topic table: %w", err)
	}

	classifier := intent.NewClassifier(topics)
	prompts := composer.NewBuilder(pack.Prompts)
	gw := gateway.FromConfig(cfg.LLM)
	library := fallback.New(pack)

	return &app{
		cfg:        cfg,
		pack:       pack,
		topics:     topics,
		classifier: classifier,
		prompts:    prompts,
		gateway:    gw,
		coach: pipeline.NewCoach(
			classifier,
			prompts,
			gw,
			library,
			pipeline.NewComposer(pack),
			cfg.LLM.MaxTokensBrief,
		),
		sprints: sprint.NewGenerator(gw, prompts, topics, library, pack.Sprint, sprint.Options{
			Passcode:          cfg.Access.Passcode,
			MaxTokensSprint:   cfg.LLM.MaxTokensSprint,
			MaxTokensFollowup: cfg.LLM.MaxTokensFollowup,
		}),
	}, nil
}

// loadApp loads configuration, installs logging and builds the app.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return newApp(cfg)
}
