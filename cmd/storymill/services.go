package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/storymill/storymill/internal/config"
	"github.com/storymill/storymill/internal/home"
	"github.com/storymill/storymill/internal/orchestrator"
	"github.com/storymill/storymill/internal/packaging"
	"github.com/storymill/storymill/internal/progress"
	"github.com/storymill/storymill/internal/providers"
	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/resilient"
	"github.com/storymill/storymill/internal/store"
	"github.com/storymill/storymill/internal/svcctx"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// buildServices wires the full pipeline from configuration. The returned
// services are not running yet; callers start the hub and queue loops.
func buildServices(logger *slog.Logger) (*svcctx.Services, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	cfgPath := cfgFile
	if cfgPath == "" && h.ConfigExists() {
		cfgPath = h.ConfigPath()
	}
	cm, err := config.NewManager(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get().Resolved()

	fetcher := resilient.NewFetcher(resilient.FetcherConfig{Logger: logger})

	st := store.NewStore(h, logger)
	if err := st.LoadAll(); err != nil {
		logger.Warn("failed to load existing projects", "error", err)
	}

	hub := progress.NewHub(logger)

	script, err := buildScriptGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}
	speech := providers.NewSpeechClient(providers.SpeechConfig{
		APIKey: cfg.Speech.APIKey,
		Model:  cfg.Speech.Model,
		Voice:  cfg.Speech.Voice,
		Speed:  cfg.Speech.Speed,
	})

	var images providers.ImageProvider
	if cfg.Images.Enabled {
		if cfg.Images.Source == "stock" && cfg.Images.PexelsAPIKey != "" {
			images = providers.NewPexelsClient(providers.PexelsConfig{
				APIKey: cfg.Images.PexelsAPIKey,
			})
		} else {
			images = providers.NewPollinationsClient(providers.PollinationsConfig{
				Width:   cfg.Images.Width,
				Height:  cfg.Images.Height,
				Fetcher: fetcher,
				Logger:  logger,
			})
		}
	}
	var music providers.TrackSearcher
	if cfg.Music.Enabled && cfg.Music.JamendoClientID != "" {
		music = providers.NewJamendoClient(providers.JamendoConfig{
			ClientID: cfg.Music.JamendoClientID,
		})
	}
	var sfx providers.TrackSearcher
	if cfg.Sfx.Enabled && cfg.Sfx.FreesoundAPIKey != "" {
		sfx = providers.NewFreesoundClient(providers.FreesoundConfig{
			APIKey: cfg.Sfx.FreesoundAPIKey,
		})
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Script:  script,
		Speech:  speech,
		Images:  images,
		Music:   music,
		Sfx:     sfx,
		Fetcher: fetcher,
		Store:   st,
		Hub:     hub,
		Logger:  logger,
		Options: orchestrator.Options{
			ImagesEnabled:    images != nil,
			ImagesPerChapter: cfg.Images.PerChapter,
			MusicEnabled:     music != nil,
			MusicRequired:    cfg.Music.Required,
			SfxEnabled:       sfx != nil,
			SearchTTL:        time.Duration(cfg.Sfx.CacheTTLMinutes) * time.Minute,
			TargetMinutes:    cfg.Defaults.TargetMinutes,
			Retry:            scriptRetryOptions(cfg),
		},
	})
	if err != nil {
		return nil, err
	}

	pk := packaging.New(packaging.Config{Home: h, Fetcher: fetcher, Logger: logger})

	q, err := queue.NewScheduler(queue.SchedulerConfig{
		Runner:              orch,
		Store:               st,
		Packager:            pk,
		Hub:                 hub,
		Logger:              logger,
		PackageOnCompletion: cfg.Queue.PackageOnCompletion,
	})
	if err != nil {
		return nil, err
	}

	return &svcctx.Services{
		Logger:       logger,
		Home:         h,
		ConfigMgr:    cm,
		Store:        st,
		Orchestrator: orch,
		Queue:        q,
		Packager:     pk,
		Hub:          hub,
	}, nil
}

// buildScriptGenerator assembles the primary chat-backed script writer,
// plus the fallback model when one is configured.
func buildScriptGenerator(cfg *config.Config, logger *slog.Logger) (providers.ScriptGenerator, error) {
	primary, err := providers.NewScriptWriter(providers.ScriptWriterConfig{
		Chat: providers.NewChatClient(providers.ChatConfig{
			APIKey:  cfg.Script.APIKey,
			Model:   cfg.Script.Model,
			BaseURL: cfg.Script.BaseURL,
		}),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	gen := &providers.FallbackScriptGenerator{
		Primary: primary,
		Opts:    scriptRetryOptions(cfg),
	}
	if cfg.Script.FallbackModel != "" {
		secondary, err := providers.NewScriptWriter(providers.ScriptWriterConfig{
			Chat: providers.NewChatClient(providers.ChatConfig{
				APIKey:  cfg.Script.APIKey,
				Model:   cfg.Script.FallbackModel,
				BaseURL: cfg.Script.BaseURL,
			}),
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		gen.Secondary = secondary
	}
	return gen, nil
}

func scriptRetryOptions(cfg *config.Config) resilient.CallOptions {
	opts := resilient.CallOptions{}
	if cfg.Script.MaxRetries > 0 {
		opts.MaxAttempts = uint(cfg.Script.MaxRetries)
	}
	return opts
}
