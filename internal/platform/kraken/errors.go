package kraken

import (
	"fmt"
	"strings"

	"github.com/tradewire/signalbridge/internal/domain"
)

// classifyError maps Kraken's error strings to the domain error taxonomy so
// callers can decide what is retryable without knowing Kraken's codes.
func classifyError(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	joined := strings.Join(errs, "; ")

	for _, e := range errs {
		switch {
		case strings.Contains(e, "Rate limit"),
			strings.Contains(e, "Too many requests"):
			return fmt.Errorf("kraken: %s: %w", joined, domain.ErrRateLimited)
		case strings.Contains(e, "Insufficient funds"):
			return fmt.Errorf("kraken: %s: %w", joined, domain.ErrInsufficientFunds)
		case strings.HasPrefix(e, "EService:"):
			return fmt.Errorf("kraken: %s: %w", joined, domain.ErrExchangeUnavailable)
		case strings.Contains(e, "Invalid key"),
			strings.Contains(e, "Invalid signature"),
			strings.Contains(e, "Permission denied"):
			return fmt.Errorf("kraken: %s: %w", joined, domain.ErrUnauthorized)
		case strings.Contains(e, "Unknown asset pair"):
			return fmt.Errorf("kraken: %s: %w", joined, domain.ErrNotFound)
		case strings.HasPrefix(e, "EOrder:"),
			strings.Contains(e, "Invalid arguments"):
			return fmt.Errorf("kraken: %s: %w", joined, domain.ErrInvalidOrder)
		}
	}
	return fmt.Errorf("kraken: %s", joined)
}
