package coordinator

import (
	"context"

	"github.com/nerrad567/revend-core/internal/detection"
	"github.com/nerrad567/revend-core/internal/kiosk/handoff"
)

// Backend is what the resolver needs from the backend client.
type Backend interface {
	SessionActive(ctx context.Context) (bool, error)
	Classify(ctx context.Context, image []byte) (detection.Result, error)
}

// Camera captures one image of the inserted object.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Logger defines the logging interface for the resolver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Resolver turns one READY request into a verdict token. It implements
// handoff.Resolver.
type Resolver struct {
	backend Backend
	camera  Camera
	logger  Logger
}

// NewResolver creates a resolver.
func NewResolver(backend Backend, camera Camera, logger Logger) *Resolver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Resolver{
		backend: backend,
		camera:  camera,
		logger:  logger,
	}
}

// Resolve handles one confirmed insertion:
//
//  1. No active session on this machine answers NO_SESSION without
//     spending a classification call.
//  2. Capture or backend failures answer ERROR; the item was never
//     evaluated and no transaction exists.
//  3. Otherwise the classified material becomes the verdict, REJECTED
//     included.
//
// Every failure path produces a token rather than an error: the
// detector always gets exactly one response per READY.
func (r *Resolver) Resolve(ctx context.Context) handoff.Token {
	active, err := r.backend.SessionActive(ctx)
	if err != nil {
		r.logger.Error("session lookup failed", "error", err)
		return handoff.TokenError
	}
	if !active {
		r.logger.Info("insertion without active session")
		return handoff.TokenNoSession
	}

	image, err := r.camera.Capture(ctx)
	if err != nil {
		r.logger.Error("image capture failed", "error", err)
		return handoff.TokenError
	}

	res, err := r.backend.Classify(ctx, image)
	if err != nil {
		r.logger.Error("classification failed", "error", err)
		return handoff.TokenError
	}

	r.logger.Info("item classified",
		"material", res.Material.String(),
		"confidence", res.Confidence,
		"points", res.Points,
	)

	switch res.Material {
	case detection.MaterialPlastic:
		return handoff.TokenPlastic
	case detection.MaterialNonPlastic:
		return handoff.TokenCan
	default:
		return handoff.TokenRejected
	}
}
