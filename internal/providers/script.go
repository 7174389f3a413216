package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/storymill/storymill/internal/story"
)

// blueprintSchema is the canonical JSON schema for script blueprints.
// It is sent as the response format and used for local validation.
const blueprintSchema = `{
  "type": "object",
  "required": ["title", "lines"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "lines": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["speaker", "text"],
        "properties": {
          "speaker": {"type": "string", "minLength": 1},
          "text": {"type": "string"},
          "searchKeywords": {"type": "array", "items": {"type": "string"}},
          "soundEffectVolume": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "musicKeywords": {"type": "array", "items": {"type": "string"}},
    "visualPrompts": {"type": "array", "items": {"type": "string"}}
  }
}`

// ParseState tags the outcome of structured-output parsing.
type ParseState int

const (
	// ParseOK means the output parsed and validated.
	ParseOK ParseState = iota
	// ParseNeedsCorrection means the output was malformed but a bounded
	// correction request may fix it.
	ParseNeedsCorrection
	// ParseFailed means the output is unusable even after correction.
	ParseFailed
)

// ParseOutcome is the tagged result of one parse attempt.
type ParseOutcome struct {
	State     ParseState
	Blueprint *ScriptBlueprint
	Raw       string
	Issue     error
}

// ScriptWriterConfig configures a ScriptWriter.
type ScriptWriterConfig struct {
	Chat   *ChatClient
	Logger *slog.Logger
}

// ScriptWriter generates chapter script blueprints via a chat backend
// with schema-validated structured output. A malformed response gets
// exactly one correction round before the failure is surfaced.
type ScriptWriter struct {
	chat   *ChatClient
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewScriptWriter creates a script generator backed by a chat client.
func NewScriptWriter(cfg ScriptWriterConfig) (*ScriptWriter, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("blueprint.json", bytes.NewReader([]byte(blueprintSchema))); err != nil {
		return nil, fmt.Errorf("failed to load blueprint schema: %w", err)
	}
	schema, err := compiler.Compile("blueprint.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile blueprint schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ScriptWriter{chat: cfg.Chat, schema: schema, logger: logger}, nil
}

// Name returns the provider identifier.
func (w *ScriptWriter) Name() string {
	return "chat:" + w.chat.Model()
}

// GenerateScript requests a structured script blueprint.
func (w *ScriptWriter) GenerateScript(ctx context.Context, req *ScriptRequest) (*ScriptBlueprint, error) {
	messages := []ChatMessage{
		{Role: "system", Content: scriptSystemPrompt},
		{Role: "user", Content: buildScriptPrompt(req)},
	}

	content, err := w.chat.Complete(ctx, messages, responseFormat())
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}

	outcome := w.parse(content)
	switch outcome.State {
	case ParseOK:
		return outcome.Blueprint, nil
	case ParseNeedsCorrection:
		// One bounded correction round: ask the backend to fix its own output.
		w.logger.Warn("script blueprint malformed, requesting correction", "issue", outcome.Issue)
		corrected, err := w.chat.Complete(ctx, []ChatMessage{
			{Role: "user", Content: correctionPrompt(outcome.Raw, outcome.Issue)},
		}, responseFormat())
		if err != nil {
			return nil, fmt.Errorf("script correction request failed: %w", err)
		}
		retried := w.parse(corrected)
		if retried.State == ParseOK {
			return retried.Blueprint, nil
		}
		return nil, fmt.Errorf("script blueprint unusable after correction: %v", retried.Issue)
	default:
		return nil, fmt.Errorf("script blueprint unusable: %v", outcome.Issue)
	}
}

// parse attempts to extract and validate a blueprint from model output.
func (w *ScriptWriter) parse(content string) ParseOutcome {
	raw, err := extractJSON(content)
	if err != nil {
		return ParseOutcome{State: ParseNeedsCorrection, Raw: content, Issue: err}
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ParseOutcome{State: ParseNeedsCorrection, Raw: content, Issue: err}
	}
	if err := w.schema.Validate(doc); err != nil {
		return ParseOutcome{State: ParseNeedsCorrection, Raw: content, Issue: fmt.Errorf("blueprint does not match schema: %w", err)}
	}

	var bp ScriptBlueprint
	if err := json.Unmarshal(raw, &bp); err != nil {
		return ParseOutcome{State: ParseFailed, Raw: content, Issue: err}
	}
	return ParseOutcome{State: ParseOK, Blueprint: &bp}
}

func responseFormat() json.RawMessage {
	wrapper := map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   "script_blueprint",
			"strict": true,
			"schema": json.RawMessage(blueprintSchema),
		},
	}
	raw, _ := json.Marshal(wrapper)
	return raw
}

// extractJSON recovers a JSON document from model output, tolerating
// markdown code fences and surrounding prose.
func extractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 1 {
			lines = lines[1:]
			if strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			content = strings.TrimSpace(strings.Join(lines, "\n"))
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in output")
	}
	candidate := content[start : end+1]

	var parsed any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse structured JSON: %w", err)
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize structured output: %w", err)
	}
	return normalized, nil
}

const scriptSystemPrompt = `You are a scriptwriter for long-form narrated videos.
Write vivid, engaging chapter scripts as structured JSON. Lines spoken by a
character use that character's name as the speaker. Sound-effect cues use the
reserved speaker "SFX" with a short description as text and searchKeywords for
finding the effect. Include musicKeywords for background-music search and
visualPrompts for image generation.`

func buildScriptPrompt(req *ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write chapter %d of %d for a narrated project about: %s\n", req.ChapterNumber, req.ChapterCount, req.Topic)
	if req.ProjectTitle != "" {
		fmt.Fprintf(&b, "Project title: %s\n", req.ProjectTitle)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	if req.TargetMinutes > 0 {
		fmt.Fprintf(&b, "Target length: about %d minutes of narration.\n", req.TargetMinutes)
	}
	if len(req.PreviousTitles) > 0 {
		fmt.Fprintf(&b, "Chapters so far: %s\n", strings.Join(req.PreviousTitles, "; "))
	}
	fmt.Fprintf(&b, "Use the reserved speaker %q only for sound-effect cues.\n", story.SpeakerSFX)
	b.WriteString("Respond with JSON only.")
	return b.String()
}

func correctionPrompt(lastOutput string, issue error) string {
	lastOutput = strings.TrimSpace(lastOutput)
	if len(lastOutput) > 12000 {
		lastOutput = lastOutput[:12000] + "\n...[truncated]"
	}
	return fmt.Sprintf(`Return ONLY valid JSON (no markdown, no commentary) that strictly conforms to this schema.

Schema:
%s

Your previous output:
%s

Validation issue:
%v`, blueprintSchema, lastOutput, issue)
}
