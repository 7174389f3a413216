// Package packaging turns a generated project into a self-contained zip
// archive: per-chapter audio, subtitles, images, trimmed music, sound
// effects, and the assembly metadata an offline video builder consumes.
package packaging

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/storymill/storymill/internal/home"
	"github.com/storymill/storymill/internal/resilient"
	"github.com/storymill/storymill/internal/story"
)

// Config wires a Packager.
type Config struct {
	Home    *home.Dir
	Fetcher *resilient.Fetcher
	Logger  *slog.Logger
}

// Packager builds project archives. Music trimming degrades gracefully
// when ffmpeg is absent: the untrimmed track is packaged instead.
type Packager struct {
	home     *home.Dir
	fetcher  *resilient.Fetcher
	logger   *slog.Logger
	ffmpegOK bool
}

// New creates a packager.
func New(cfg Config) *Packager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = resilient.NewFetcher(resilient.FetcherConfig{Logger: logger})
	}

	ffmpegOK := CheckFFmpegAvailable() == nil
	if !ffmpegOK {
		logger.Warn("ffmpeg not available, music tracks will be packaged untrimmed")
	}

	return &Packager{
		home:     cfg.Home,
		fetcher:  fetcher,
		logger:   logger,
		ffmpegOK: ffmpegOK,
	}
}

// projectManifest is the archive-level index of the project.
type projectManifest struct {
	ID            string   `json:"id"`
	Topic         string   `json:"topic"`
	Title         string   `json:"title"`
	Language      string   `json:"language"`
	ChapterCount  int      `json:"chapterCount"`
	PackedCount   int      `json:"packedCount"`
	TotalDuration float64  `json:"totalDurationSec"`
	MusicVolume   float64  `json:"musicVolume"`
	ImageSource   string   `json:"imageSource"`
	Description   string   `json:"description,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	HasThumbnail  bool     `json:"hasThumbnail"`
	SchemaVersion int      `json:"schemaVersion"`
}

// Package writes the project archive and returns its path. Only completed
// chapters are packaged; a project with none is an error.
func (pk *Packager) Package(ctx context.Context, p *story.Project) (string, error) {
	var completed []*story.Chapter
	for _, ch := range p.Chapters {
		if ch.Status == story.StatusCompleted {
			completed = append(completed, ch)
		}
	}
	if len(completed) == 0 {
		return "", fmt.Errorf("project %s has no completed chapters to package", p.ID)
	}

	outPath := pk.home.ArchivePath(p.ID)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create archives directory: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	if p.Thumbnail != nil && len(p.Thumbnail.Data) > 0 {
		ext := p.Thumbnail.Ext
		if ext == "" {
			ext = "jpg"
		}
		if err := writeEntry(zw, "thumbnail."+ext, p.Thumbnail.Data); err != nil {
			return "", err
		}
	}

	// A chapter that cannot be packaged is dropped from the archive; the
	// manifest and assembly script list only what actually shipped.
	var packed []*story.Chapter
	for _, ch := range completed {
		if err := pk.packChapter(ctx, zw, p, ch); err != nil {
			pk.logger.Warn("chapter omitted from archive", "project", p.ID, "chapter", ch.Number, "error", err)
			continue
		}
		packed = append(packed, ch)
	}
	if len(packed) == 0 {
		return "", fmt.Errorf("project %s: every completed chapter failed to package", p.ID)
	}

	if err := writeEntry(zw, "assemble.sh", []byte(assemblyScript(packed))); err != nil {
		return "", err
	}
	if err := pk.writeManifest(zw, p, packed); err != nil {
		return "", err
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize archive: %w", err)
	}
	pk.logger.Info("project packaged", "project", p.ID, "chapters", len(packed), "path", outPath)
	return outPath, nil
}

func (pk *Packager) writeManifest(zw *zip.Writer, p *story.Project, completed []*story.Chapter) error {
	var total float64
	for _, ch := range completed {
		if ch.Audio != nil {
			total += ch.Audio.DurationSec
		}
	}
	manifest := projectManifest{
		ID:            p.ID,
		Topic:         p.Topic,
		Title:         p.Title,
		Language:      p.Language,
		ChapterCount:  len(p.Chapters),
		PackedCount:   len(completed),
		TotalDuration: round2(total),
		MusicVolume:   p.MusicVolume,
		ImageSource:   string(p.ImageSource),
		Description:   p.Description,
		Keywords:      p.Keywords,
		HasThumbnail:  p.Thumbnail != nil && len(p.Thumbnail.Data) > 0,
		SchemaVersion: 1,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project manifest: %w", err)
	}
	return writeEntry(zw, "project.json", data)
}

// packChapter writes one chapter_NNN/ subtree.
func (pk *Packager) packChapter(ctx context.Context, zw *zip.Writer, p *story.Project, ch *story.Chapter) error {
	dir := fmt.Sprintf("chapter_%03d/", ch.Number)

	if ch.Audio == nil || len(ch.Audio.Data) == 0 {
		return fmt.Errorf("completed chapter has no narration audio")
	}
	format := ch.Audio.Format
	if format == "" {
		format = "mp3"
	}
	if err := writeEntry(zw, dir+"audio."+format, ch.Audio.Data); err != nil {
		return err
	}

	audioDuration := pk.measureAudio(ctx, p.ID, ch)

	srt := FormatSRT(BuildCues(ch.Lines, audioDuration))
	if err := writeEntry(zw, dir+"subtitles.srt", []byte(srt)); err != nil {
		return err
	}

	if err := pk.packImages(ctx, zw, dir, ch); err != nil {
		return err
	}
	if ch.Music != nil {
		if err := pk.packMusic(ctx, zw, dir, ch.Music, audioDuration); err != nil {
			// Music is optional at packaging time too.
			pk.logger.Warn("music omitted from archive", "chapter", ch.Number, "error", err)
		}
	}
	if err := pk.packSfx(ctx, zw, dir, ch); err != nil {
		return err
	}

	md := BuildChapterMetadata(ch, audioDuration, p.MusicVolume)
	data, err := md.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode chapter metadata: %w", err)
	}
	return writeEntry(zw, dir+"metadata.json", data)
}

// measureAudio prefers a real ffprobe measurement over the synthesis
// estimate. The blob lands in the chapter working directory, leaving an
// inspectable copy next to the project manifest.
func (pk *Packager) measureAudio(ctx context.Context, projectID string, ch *story.Chapter) float64 {
	estimate := ch.Audio.DurationSec
	if !pk.ffmpegOK || pk.home == nil {
		return estimate
	}

	if err := pk.home.EnsureChapterDir(projectID, ch.Number); err != nil {
		return estimate
	}
	path := pk.home.ChapterAudioPath(projectID, ch.Number, ch.Audio.Format)
	if err := os.WriteFile(path, ch.Audio.Data, 0o644); err != nil {
		return estimate
	}

	measured, err := ProbeAudioDuration(ctx, path)
	if err != nil || measured <= 0 {
		return estimate
	}
	return measured
}

func (pk *Packager) packImages(ctx context.Context, zw *zip.Writer, dir string, ch *story.Chapter) error {
	for i, img := range ch.Images {
		data := img.Data
		if len(data) == 0 && img.URL != "" {
			fetched, err := pk.fetcher.Fetch(ctx, img.URL)
			if err != nil {
				pk.logger.Warn("image omitted from archive", "chapter", ch.Number, "url", img.URL, "error", err)
				continue
			}
			data = fetched
		}
		ext := img.Ext
		if ext == "" {
			ext = "jpg"
		}
		name := fmt.Sprintf("%simages/%03d.%s", dir, i+1, ext)
		if err := writeEntry(zw, name, data); err != nil {
			return err
		}
	}
	return nil
}

// packMusic writes the background track, trimmed to the narration length
// with a fade when ffmpeg is available and the track runs long.
func (pk *Packager) packMusic(ctx context.Context, zw *zip.Writer, dir string, music *story.MusicTrack, audioDuration float64) error {
	data := music.Data
	if len(data) == 0 {
		if music.URL == "" {
			return fmt.Errorf("music track has no data or URL")
		}
		fetched, err := pk.fetcher.Fetch(ctx, music.URL)
		if err != nil {
			return fmt.Errorf("failed to download music: %w", err)
		}
		data = fetched
	}

	needsTrim := pk.ffmpegOK && audioDuration > musicFadeSeconds &&
		(music.DurationSec == 0 || music.DurationSec > audioDuration)
	if needsTrim {
		trimmed, err := pk.trimMusic(ctx, data, audioDuration)
		if err != nil {
			pk.logger.Warn("music trim failed, packaging untrimmed track", "error", err)
		} else {
			data = trimmed
		}
	}
	return writeEntry(zw, dir+"music.mp3", data)
}

func (pk *Packager) trimMusic(ctx context.Context, data []byte, duration float64) ([]byte, error) {
	in, err := os.CreateTemp("", "storymill-music-in-*.mp3")
	if err != nil {
		return nil, err
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, err
	}
	in.Close()

	outPath := in.Name() + ".trimmed.mp3"
	defer os.Remove(outPath)
	if err := TrimMusicWithFade(ctx, in.Name(), outPath, duration); err != nil {
		return nil, err
	}
	return os.ReadFile(outPath)
}

// packSfx writes each cue's audio at the path its timing names. Effects
// with neither data nor a fetchable URL are listed in sfx/links.json so
// the assembler can resolve them manually.
func (pk *Packager) packSfx(ctx context.Context, zw *zip.Writer, dir string, ch *story.Chapter) error {
	effects := effectsByName(ch.Lines)
	links := map[string]string{}

	for _, timing := range ch.SfxTimings {
		effect, ok := effects[timing.Name]
		if !ok {
			continue
		}
		data := effect.Data
		if len(data) == 0 && effect.URL != "" {
			fetched, err := pk.fetcher.Fetch(ctx, effect.URL)
			if err != nil {
				links[timing.Name] = effect.URL
				continue
			}
			data = fetched
		}
		if len(data) == 0 {
			if effect.URL != "" {
				links[timing.Name] = effect.URL
			}
			continue
		}
		if err := writeEntry(zw, dir+timing.File, data); err != nil {
			return err
		}
	}

	if len(links) > 0 {
		data, err := json.MarshalIndent(links, "", "  ")
		if err != nil {
			return err
		}
		return writeEntry(zw, dir+"sfx/links.json", data)
	}
	return nil
}

func effectsByName(lines []story.ScriptLine) map[string]*story.SoundEffect {
	out := map[string]*story.SoundEffect{}
	for _, line := range lines {
		if line.SoundEffect != nil {
			out[line.SoundEffect.Name] = line.SoundEffect
		}
	}
	return out
}

// writeEntry adds one file to the archive with a fixed timestamp so
// repeated packaging runs produce identical entries.
func writeEntry(zw *zip.Writer, name string, data []byte) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Unix(0, 0).UTC(),
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return nil
}
