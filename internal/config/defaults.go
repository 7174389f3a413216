package config

// DefaultConfig returns the built-in configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Script: ScriptConfig{
			Model:         "anthropic/claude-sonnet-4.5",
			FallbackModel: "openai/gpt-4o-mini",
			APIKey:        "${OPENROUTER_API_KEY}",
			MaxRetries:    3,
		},
		Speech: SpeechConfig{
			Model:  "tts-1-hd",
			Voice:  "onyx",
			Speed:  1.0,
			APIKey: "${OPENAI_API_KEY}",
		},
		Images: ImagesConfig{
			Enabled:      true,
			Source:       "ai",
			Width:        1920,
			Height:       1080,
			PerChapter:   5,
			PexelsAPIKey: "${PEXELS_API_KEY}",
		},
		Music: MusicConfig{
			Enabled:         true,
			Required:        false,
			JamendoClientID: "${JAMENDO_CLIENT_ID}",
			Volume:          0.3,
		},
		Sfx: SfxConfig{
			Enabled:         true,
			FreesoundAPIKey: "${FREESOUND_API_KEY}",
			CacheTTLMinutes: 15,
		},
		Queue: QueueConfig{
			PackageOnCompletion: true,
			ContinuousChapters:  false,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Defaults: DefaultsConfig{
			ChapterCount:  5,
			Language:      "en",
			TargetMinutes: 8,
		},
	}
}
