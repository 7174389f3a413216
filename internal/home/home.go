// Package home manages the storymill home directory layout.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the storymill home directory.
	DefaultDirName = ".storymill"

	// ProjectsDirName is the subdirectory holding per-project working data.
	ProjectsDirName = "projects"

	// ArchivesDirName is the subdirectory holding packaged project archives.
	ArchivesDirName = "archives"

	// CacheDirName is the subdirectory for downloaded search results and media.
	CacheDirName = "cache"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the storymill home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.storymill).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ProjectsPath returns the path to the projects directory.
func (d *Dir) ProjectsPath() string {
	return filepath.Join(d.path, ProjectsDirName)
}

// ArchivesPath returns the path to the archives directory.
func (d *Dir) ArchivesPath() string {
	return filepath.Join(d.path, ArchivesDirName)
}

// CachePath returns the path to the cache directory.
func (d *Dir) CachePath() string {
	return filepath.Join(d.path, CacheDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.ProjectsPath(), d.ArchivesPath(), d.CachePath()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ProjectDir returns the working directory for a project.
func (d *Dir) ProjectDir(projectID string) string {
	return filepath.Join(d.ProjectsPath(), projectID)
}

// ChapterDir returns the working directory for one chapter of a project.
// Chapter numbers are 1-indexed.
func (d *Dir) ChapterDir(projectID string, chapterNum int) string {
	return filepath.Join(d.ProjectDir(projectID), fmt.Sprintf("chapter_%03d", chapterNum))
}

// ChapterAudioPath returns the narration audio path for a chapter.
func (d *Dir) ChapterAudioPath(projectID string, chapterNum int, format string) string {
	if format == "" {
		format = "mp3"
	}
	return filepath.Join(d.ChapterDir(projectID, chapterNum), "audio."+format)
}

// EnsureChapterDir creates the working directory for a chapter.
func (d *Dir) EnsureChapterDir(projectID string, chapterNum int) error {
	if err := os.MkdirAll(d.ChapterDir(projectID, chapterNum), 0o755); err != nil {
		return fmt.Errorf("failed to create chapter directory: %w", err)
	}
	return nil
}

// ArchivePath returns the output path for a packaged project archive.
func (d *Dir) ArchivePath(projectID string) string {
	return filepath.Join(d.ArchivesPath(), projectID+".zip")
}
