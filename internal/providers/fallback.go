package providers

import (
	"context"

	"github.com/storymill/storymill/internal/resilient"
)

// FallbackScriptGenerator wraps a primary and secondary script backend.
// The secondary is consulted only after the primary exhausts its retries;
// a combined error surfaces when both are exhausted.
type FallbackScriptGenerator struct {
	Primary   ScriptGenerator
	Secondary ScriptGenerator
	Opts      resilient.CallOptions
}

// Name returns a combined provider identifier.
func (f *FallbackScriptGenerator) Name() string {
	if f.Secondary == nil {
		return f.Primary.Name()
	}
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

// GenerateScript tries the primary backend with retries, then the secondary.
func (f *FallbackScriptGenerator) GenerateScript(ctx context.Context, req *ScriptRequest) (*ScriptBlueprint, error) {
	if f.Secondary == nil {
		return resilient.CallWithRetries(ctx, func(ctx context.Context) (*ScriptBlueprint, error) {
			return f.Primary.GenerateScript(ctx, req)
		}, f.Opts)
	}

	return resilient.WithFallback(ctx,
		func(ctx context.Context) (*ScriptBlueprint, error) {
			return f.Primary.GenerateScript(ctx, req)
		},
		func(ctx context.Context) (*ScriptBlueprint, error) {
			return f.Secondary.GenerateScript(ctx, req)
		},
		f.Opts,
	)
}

var _ ScriptGenerator = (*FallbackScriptGenerator)(nil)
