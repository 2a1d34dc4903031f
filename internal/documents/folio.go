package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrFolioGenerationFailed indicates the store could not guarantee an atomic
// reservation. Callers retry with backoff instead of assuming success.
var ErrFolioGenerationFailed = errors.New("folio generation failed")

// FolioGenerator hands out type-prefixed sequential folios. Uniqueness comes
// from the store's atomic check-and-reserve, never from a client-side counter.
type FolioGenerator struct {
	store  Store
	logger *slog.Logger
}

// NewFolioGenerator builds a FolioGenerator.
func NewFolioGenerator(store Store, logger *slog.Logger) *FolioGenerator {
	return &FolioGenerator{store: store, logger: logger}
}

// Generate reserves and returns the next folio for the given kind.
func (g *FolioGenerator) Generate(ctx context.Context, kind DocumentKind) (string, error) {
	if kind != KindQuotation && kind != KindOrder {
		return "", fmt.Errorf("%w: unknown kind %q", ErrFolioGenerationFailed, kind)
	}

	folio, err := g.store.ReserveFolio(ctx, kind)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			// The sequence upsert lost atomicity; the reservation must not be trusted.
			return "", fmt.Errorf("%w: duplicate reservation for kind %s", ErrFolioGenerationFailed, kind)
		}
		return "", fmt.Errorf("reserve folio: %w", err)
	}

	if g.logger != nil {
		g.logger.Debug("folio reserved", slog.String("kind", string(kind)), slog.String("folio", folio))
	}
	return folio, nil
}
