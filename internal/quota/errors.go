package quota

import "fmt"

// QuotaExceededError reasons.
const (
	// ReasonMonthlyCap means the tier's monthly OCR count is exhausted.
	ReasonMonthlyCap = "monthly_cap"
	// ReasonPageCap means a single request exceeds the tier's page ceiling.
	ReasonPageCap = "page_cap"
)

// QuotaExceededError reports a denied OCR request with the figures a client
// needs to render an actionable message.
type QuotaExceededError struct {
	Tier         Tier
	Reason       string
	CurrentCount int
	Limit        int
	PageCount    int
	PageLimit    int
}

func (e *QuotaExceededError) Error() string {
	if e.Reason == ReasonPageCap {
		return fmt.Sprintf("quota exceeded: %d pages over the %s tier per-request limit of %d", e.PageCount, e.Tier, e.PageLimit)
	}
	return fmt.Sprintf("quota exceeded: %d of %d monthly OCR operations used on the %s tier", e.CurrentCount, e.Limit, e.Tier)
}

// InsufficientCreditsError reports a credit balance too low for the request.
type InsufficientCreditsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %.2f required, %.2f available", e.Required, e.Available)
}
