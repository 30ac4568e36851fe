package classify

import (
	"context"

	"github.com/whatscrm/server/pkg/logging"
)

// FallbackClassifier wraps a primary classifier with the deterministic
// keyword detector. Classification never surfaces an error to the engine;
// when the primary fails the keyword verdict stands in.
type FallbackClassifier struct {
	primary  Classifier
	fallback Classifier
	logger   *logging.Logger
}

// NewFallbackClassifier builds the standard chain. A nil primary means
// keyword-only operation.
func NewFallbackClassifier(primary Classifier, logger *logging.Logger) *FallbackClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClassifier{
		primary:  primary,
		fallback: NewKeywordClassifier(),
		logger:   logger,
	}
}

// Classify tries the primary and falls back to keywords on any failure.
func (c *FallbackClassifier) Classify(ctx context.Context, in Input) (Result, error) {
	if c.primary != nil {
		res, err := c.primary.Classify(ctx, in)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("primary classifier failed, using keyword fallback", "error", err)
	}
	return c.fallback.Classify(ctx, in)
}
