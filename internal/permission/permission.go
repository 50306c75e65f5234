// Package permission gates camera and location access behind a platform
// prompt. A denial is never cached: every request prompts again.
package permission

import (
	"context"
	"log/slog"
)

// Kind identifies a device capability.
type Kind string

const (
	Camera   Kind = "camera"
	Location Kind = "location"
)

// Rationale is shown with a prompt.
type Rationale struct {
	Title   string
	Message string
}

// Rationales holds the prompt text per capability.
var Rationales = map[Kind]Rationale{
	Camera: {
		Title:   "Camera Permission",
		Message: "This app needs camera access to take pictures.",
	},
	Location: {
		Title:   "Location Permission",
		Message: "This app needs location access to tag photos.",
	},
}

// Prompter asks the user for access. An error counts as a denial.
type Prompter interface {
	Prompt(ctx context.Context, kind Kind, r Rationale) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, kind Kind, r Rationale) (bool, error)

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, kind Kind, r Rationale) (bool, error) {
	return f(ctx, kind, r)
}

// Gate resolves access requests.
type Gate struct {
	prompter Prompter
	logger   *slog.Logger
}

// NewPrompting builds a gate for platforms that require a runtime prompt.
func NewPrompting(p Prompter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{prompter: p, logger: logger}
}

// NewAutoGrant builds a gate for platforms that grant access at install time.
func NewAutoGrant() *Gate {
	return &Gate{logger: slog.Default()}
}

// ForPlatform picks the gate for a platform name. Only android prompts.
func ForPlatform(platform string, p Prompter, logger *slog.Logger) *Gate {
	if platform == "android" && p != nil {
		return NewPrompting(p, logger)
	}
	return NewAutoGrant()
}

// Prompts reports whether the gate asks the user.
func (g *Gate) Prompts() bool {
	return g.prompter != nil
}

// RequestCamera resolves camera access.
func (g *Gate) RequestCamera(ctx context.Context) bool {
	return g.request(ctx, Camera)
}

// RequestLocation resolves location access.
func (g *Gate) RequestLocation(ctx context.Context) bool {
	return g.request(ctx, Location)
}

func (g *Gate) request(ctx context.Context, kind Kind) bool {
	if g.prompter == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	granted, err := g.prompter.Prompt(ctx, kind, Rationales[kind])
	if err != nil {
		g.logger.Warn("Permission prompt failed", "permission", string(kind), "error", err)
		return false
	}
	g.logger.Debug("Permission resolved", "permission", string(kind), "granted", granted)
	return granted
}
