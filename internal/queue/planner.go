package queue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is a batch of generation requests loaded from a YAML file.
type Plan struct {
	// Defaults apply to entries that leave the field unset.
	Defaults PlanDefaults `yaml:"defaults"`
	Entries  []PlanEntry  `yaml:"entries"`
}

// PlanDefaults are per-plan fallbacks for entry fields.
type PlanDefaults struct {
	Language    string `yaml:"language"`
	Chapters    int    `yaml:"chapters"`
	Minutes     int    `yaml:"minutes,omitempty"`
	ImageSource string `yaml:"image_source,omitempty"`
	Voice       string `yaml:"voice,omitempty"`
}

// PlanEntry is one requested project in a plan file.
type PlanEntry struct {
	Topic       string `yaml:"topic"`
	Language    string `yaml:"language,omitempty"`
	Chapters    int    `yaml:"chapters,omitempty"`
	Minutes     int    `yaml:"minutes,omitempty"`
	ImageSource string `yaml:"image_source,omitempty"`
	Voice       string `yaml:"voice,omitempty"`
	// Repeat expands the entry into that many items.
	Repeat     int  `yaml:"repeat,omitempty"`
	Continuous bool `yaml:"continuous,omitempty"`
}

// LoadPlan reads a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if len(plan.Entries) == 0 {
		return nil, fmt.Errorf("plan file %s has no entries", path)
	}
	return &plan, nil
}

// SavePlan writes a plan file.
func SavePlan(path string, plan *Plan) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// BuildItems expands a plan into concrete queue items, applying defaults
// and repeats in entry order.
func (p *Plan) BuildItems() ([]*Item, error) {
	var items []*Item
	for i, entry := range p.Entries {
		if entry.Topic == "" {
			return nil, fmt.Errorf("plan entry %d has no topic", i+1)
		}

		language := entry.Language
		if language == "" {
			language = p.Defaults.Language
		}
		chapters := entry.Chapters
		if chapters == 0 {
			chapters = p.Defaults.Chapters
		}
		minutes := entry.Minutes
		if minutes == 0 {
			minutes = p.Defaults.Minutes
		}
		imageSource := entry.ImageSource
		if imageSource == "" {
			imageSource = p.Defaults.ImageSource
		}
		voice := entry.Voice
		if voice == "" {
			voice = p.Defaults.Voice
		}

		repeat := entry.Repeat
		if repeat <= 0 {
			repeat = 1
		}
		for n := 0; n < repeat; n++ {
			item := NewItem(entry.Topic, language, chapters)
			item.Continuous = entry.Continuous
			item.TargetMinutes = minutes
			item.ImageSource = imageSource
			item.Voice = voice
			items = append(items, item)
		}
	}
	return items, nil
}
