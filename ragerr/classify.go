package ragerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// Classify wraps a provider error into ErrTransientProvider or
// ErrFatalProvider. Cancellation by the caller is returned unchanged.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransientProvider) || errors.Is(err, ErrFatalProvider) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var mapped *llms.Error
	if !errors.As(llms.NewErrorMapper(provider).Map(err), &mapped) {
		return fmt.Errorf("%w: %s: %w", ErrTransientProvider, provider, err)
	}

	switch mapped.Code {
	case llms.ErrCodeRateLimit, llms.ErrCodeTimeout, llms.ErrCodeProviderUnavailable, llms.ErrCodeUnknown:
		return fmt.Errorf("%w: %s: %w", ErrTransientProvider, provider, err)
	case llms.ErrCodeCanceled:
		return err
	default:
		return fmt.Errorf("%w: %s (%s): %w", ErrFatalProvider, provider, mapped.Code, err)
	}
}
