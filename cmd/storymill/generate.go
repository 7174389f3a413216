package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storymill/storymill/internal/story"
)

var (
	generateChapters int
	generateLanguage string
	generatePackage  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Generate a complete project for a topic",
	Long: `Generate a full narrated project for a single topic, chapter by chapter.

Each chapter runs the script stage followed by concurrent asset generation
(narration audio, images, music, sound effects). The project is persisted
under the home directory as it progresses, so a failed run can be resumed
through the server's retry endpoint.

Examples:
  storymill generate "the silk road"
  storymill generate "deep sea vents" --chapters 3 --package`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		services, err := buildServices(logger)
		if err != nil {
			return err
		}
		go services.Hub.Run(ctx)

		cfg := services.ConfigMgr.Get()
		language := generateLanguage
		if language == "" {
			language = cfg.Defaults.Language
		}
		chapters := generateChapters
		if chapters == 0 {
			chapters = cfg.Defaults.ChapterCount
		}

		p := story.NewProject(args[0], language, chapters)
		if err := services.Store.Add(p); err != nil {
			return err
		}
		logger.Info("generating project", "id", p.ID, "topic", p.Topic, "chapters", len(p.Chapters))

		for _, ch := range p.Chapters {
			if err := services.Orchestrator.GenerateChapter(ctx, p, ch); err != nil {
				return fmt.Errorf("chapter %d failed: %w", ch.Number, err)
			}
			logger.Info("chapter completed", "chapter", ch.Number, "title", ch.Title)
		}

		if generatePackage {
			path, err := services.Packager.Package(ctx, p)
			if err != nil {
				return err
			}
			logger.Info("project packaged", "path", path)
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().IntVar(&generateChapters, "chapters", 0, "number of chapters (default from config)")
	generateCmd.Flags().StringVar(&generateLanguage, "language", "", "narration language (default from config)")
	generateCmd.Flags().BoolVar(&generatePackage, "package", false, "package the project archive after generation")

	rootCmd.AddCommand(generateCmd)
}
