package flights

import (
	"context"

	"github.com/gilby125/flight-radius/pkg/logger"
)

// FallbackProvider asks primary first and, when it fails, answers from
// secondary. Substitute results carry the primary's error text.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	log       *logger.Logger
}

// NewFallbackProvider chains two providers.
func NewFallbackProvider(primary, secondary Provider, log *logger.Logger) *FallbackProvider {
	if log == nil {
		log = logger.Nop()
	}
	return &FallbackProvider{primary: primary, secondary: secondary, log: log.WithField("component", "flights")}
}

func (f *FallbackProvider) Name() string { return f.primary.Name() }

func (f *FallbackProvider) Search(ctx context.Context, from, to, date string) (*SearchResult, error) {
	res, err := f.primary.Search(ctx, from, to, date)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	f.log.WithContext(ctx).Warn("Flight source failed, using fallback",
		"provider", f.primary.Name(), "fallback", f.secondary.Name(),
		"from", from, "to", to, "date", date, "error", err)

	sub, subErr := f.secondary.Search(ctx, from, to, date)
	if subErr != nil {
		return nil, err
	}
	sub.Error = err.Error()
	return sub, nil
}
