// Package story defines the project/chapter data model, the chapter
// lifecycle state machine, and the deterministic SFX timing calculator.
package story

import (
	"time"

	"github.com/google/uuid"
)

// SpeakerSFX is the reserved speaker label for sound-effect cue lines.
// Lines with this speaker never contribute to spoken-audio duration.
const SpeakerSFX = "SFX"

// ChapterStatus is the lifecycle state of a chapter.
type ChapterStatus string

const (
	StatusPending          ChapterStatus = "pending"
	StatusScriptGenerating ChapterStatus = "script_generating"
	StatusGenerating       ChapterStatus = "generating"
	StatusAudioGenerating  ChapterStatus = "audio_generating"
	StatusImagesGenerating ChapterStatus = "images_generating"
	StatusCompleted        ChapterStatus = "completed"
	StatusError            ChapterStatus = "error"
)

// Terminal reports whether the status ends a generation attempt.
func (s ChapterStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ImageSource selects where chapter images come from.
type ImageSource string

const (
	ImageSourceAI    ImageSource = "ai"
	ImageSourceStock ImageSource = "stock"
)

// ScriptLine is one unit of spoken dialogue or a sound-effect cue.
type ScriptLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`

	// SearchKeywords are only set for SFX lines and drive sound-effect search.
	SearchKeywords []string `json:"searchKeywords,omitempty"`

	// SoundEffect is the resolved effect for an SFX line, nil until resolution.
	SoundEffect *SoundEffect `json:"soundEffect,omitempty"`

	// SoundEffectVolume overrides the default cue volume when > 0.
	SoundEffectVolume float64 `json:"soundEffectVolume,omitempty"`
}

// IsSFX reports whether the line is a sound-effect cue.
func (l ScriptLine) IsSFX() bool {
	return l.Speaker == SpeakerSFX
}

// SoundEffect is a resolved sound-effect reference.
type SoundEffect struct {
	Name string `json:"name"`
	URL  string `json:"url"`

	// Data holds the downloaded audio when resolution fetched it eagerly.
	Data []byte `json:"-"`
}

// SfxTiming is a computed sound-effect cue against the narration track.
// It is the authoritative timing contract consumed by packaging and the
// offline video assembler; once computed for a chapter it is immutable.
type SfxTiming struct {
	Name      string  `json:"name"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
	Volume    float64 `json:"volume"`
	File      string  `json:"file"`
}

// NarrationAudio is the synthesized narration for a chapter.
type NarrationAudio struct {
	Data        []byte  `json:"-"`
	Format      string  `json:"format"`
	DurationSec float64 `json:"durationSec"`
}

// ImageAsset is one generated or stock image.
type ImageAsset struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt,omitempty"`
	Ext    string `json:"ext"`
	Data   []byte `json:"-"`
}

// MusicTrack is a selected background-music track.
type MusicTrack struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	DurationSec float64 `json:"durationSec,omitempty"`
	Data        []byte  `json:"-"`
}

// Chapter is one narrated segment of a project. It is created once as
// pending and mutated in place by the orchestrator as stages complete;
// it is never deleted, only transitioned to error or completed.
type Chapter struct {
	ID     string        `json:"id"`
	Number int           `json:"number"` // 1-indexed position in the project
	Title  string        `json:"title"`
	Lines  []ScriptLine  `json:"lines,omitempty"`
	Status ChapterStatus `json:"status"`

	Audio      *NarrationAudio `json:"audio,omitempty"`
	Images     []ImageAsset    `json:"images,omitempty"`
	Music      *MusicTrack     `json:"music,omitempty"`
	SfxTimings []SfxTiming     `json:"sfxTimings,omitempty"`

	Error string `json:"error,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// NewChapter creates a pending chapter at the given 1-indexed position.
func NewChapter(number int, title string) *Chapter {
	return &Chapter{
		ID:        uuid.New().String(),
		Number:    number,
		Title:     title,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a structural copy of the chapter. Asset blobs are shared
// with the original: transitions replace blob-carrying fields wholesale
// and never write into a blob in place.
func (c *Chapter) Clone() *Chapter {
	out := *c
	out.Lines = append([]ScriptLine(nil), c.Lines...)
	out.Images = append([]ImageAsset(nil), c.Images...)
	out.SfxTimings = append([]SfxTiming(nil), c.SfxTimings...)
	if c.Audio != nil {
		a := *c.Audio
		out.Audio = &a
	}
	if c.Music != nil {
		m := *c.Music
		out.Music = &m
	}
	return &out
}

// NarrationConfig assigns voices to script speakers.
type NarrationConfig struct {
	// Voices maps speaker labels to provider voice identifiers.
	Voices map[string]string `json:"voices,omitempty"`

	// DefaultVoice is used for speakers without an explicit assignment.
	DefaultVoice string `json:"defaultVoice,omitempty"`

	// Speed is the synthesis speed multiplier (1.0 when zero).
	Speed float64 `json:"speed,omitempty"`
}

// VoiceFor returns the voice for a speaker, falling back to the default.
func (n NarrationConfig) VoiceFor(speaker string) string {
	if v, ok := n.Voices[speaker]; ok && v != "" {
		return v
	}
	return n.DefaultVoice
}

// Project is one narrated media project owned by the orchestration layer.
type Project struct {
	ID       string     `json:"id"`
	Topic    string     `json:"topic"`
	Title    string     `json:"title"`
	Language string     `json:"language"`
	Chapters []*Chapter `json:"chapters"`

	// TargetMinutes is the requested narration length per chapter; zero
	// falls back to the configured default.
	TargetMinutes int `json:"targetMinutes,omitempty"`

	Narration   NarrationConfig `json:"narration"`
	MusicVolume float64         `json:"musicVolume"`
	ImageSource ImageSource     `json:"imageSource"`

	// Thumbnail assets are produced as a first-chapter side effect.
	Thumbnail         *ImageAsset `json:"thumbnail,omitempty"`
	ThumbnailConcepts []string    `json:"thumbnailConcepts,omitempty"`

	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewProject creates a project with the given number of pending chapters.
// The chapter count is fixed after creation.
func NewProject(topic, language string, chapterCount int) *Project {
	p := &Project{
		ID:          uuid.New().String(),
		Topic:       topic,
		Language:    language,
		MusicVolume: 0.3,
		ImageSource: ImageSourceAI,
		CreatedAt:   time.Now().UTC(),
	}
	for i := 1; i <= chapterCount; i++ {
		p.Chapters = append(p.Chapters, NewChapter(i, ""))
	}
	return p
}

// Clone returns a deep structural copy of the project for readers that
// must not observe in-flight mutations.
func (p *Project) Clone() *Project {
	out := *p
	out.Chapters = make([]*Chapter, len(p.Chapters))
	for i, ch := range p.Chapters {
		out.Chapters[i] = ch.Clone()
	}
	out.ThumbnailConcepts = append([]string(nil), p.ThumbnailConcepts...)
	out.Keywords = append([]string(nil), p.Keywords...)
	if p.Thumbnail != nil {
		thumb := *p.Thumbnail
		out.Thumbnail = &thumb
	}
	if p.Narration.Voices != nil {
		voices := make(map[string]string, len(p.Narration.Voices))
		for k, v := range p.Narration.Voices {
			voices[k] = v
		}
		out.Narration.Voices = voices
	}
	return &out
}

// ChapterByID returns the chapter with the given ID, or nil.
func (p *Project) ChapterByID(id string) *Chapter {
	for _, ch := range p.Chapters {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

// NextPending returns the first chapter still in pending status, or nil.
func (p *Project) NextPending() *Chapter {
	for _, ch := range p.Chapters {
		if ch.Status == StatusPending {
			return ch
		}
	}
	return nil
}

// Generating reports whether any chapter is currently in a generating state.
func (p *Project) Generating() bool {
	for _, ch := range p.Chapters {
		switch ch.Status {
		case StatusScriptGenerating, StatusGenerating, StatusAudioGenerating, StatusImagesGenerating:
			return true
		}
	}
	return false
}

// Completed reports whether every chapter reached completed status.
func (p *Project) Completed() bool {
	for _, ch := range p.Chapters {
		if ch.Status != StatusCompleted {
			return false
		}
	}
	return len(p.Chapters) > 0
}
