// Package quota implements the per-tenant usage economy: tier limits,
// OCR credit pricing, monthly counters and the atomic commit ledger.
package quota

import "strings"

// Tier is a named service level.
type Tier string

// The closed set of service tiers.
const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// TierLimits holds the quota caps and credit pricing for one tier.
// A cap of zero or below means unlimited.
type TierLimits struct {
	MonthlyOCRLimit    int     // OCR operations per monthly window.
	MaxPagesPerRequest int     // Page ceiling for a single OCR request.
	CreditsPerPage     float64 // Per-page credit price.
	MinCharge          float64 // Floor charge for any priced request.
}

// tierLimits is the exhaustive tier table. Every tier constant has an entry.
var tierLimits = map[Tier]TierLimits{
	TierFree:       {MonthlyOCRLimit: 5, MaxPagesPerRequest: 10, CreditsPerPage: 0.5, MinCharge: 1},
	TierPro:        {MonthlyOCRLimit: 100, MaxPagesPerRequest: 50, CreditsPerPage: 0.25, MinCharge: 0.5},
	TierPremium:    {MonthlyOCRLimit: 500, MaxPagesPerRequest: 200, CreditsPerPage: 0.15, MinCharge: 0.5},
	TierEnterprise: {MonthlyOCRLimit: 0, MaxPagesPerRequest: 0, CreditsPerPage: 0, MinCharge: 0},
}

// NormalizeTier maps a stored tier string to a known tier, defaulting to
// free for anything unrecognized.
func NormalizeTier(raw string) Tier {
	tier := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := tierLimits[tier]; ok {
		return tier
	}
	return TierFree
}

// LimitsFor returns the limits table entry for a tier.
func LimitsFor(tier Tier) TierLimits {
	return tierLimits[NormalizeTier(string(tier))]
}

// PriceOCR returns the credits needed for an OCR request of the given page
// count. Monotonically non-decreasing in page count; always zero for the
// enterprise tier.
func PriceOCR(pageCount int, tier Tier) float64 {
	tier = NormalizeTier(string(tier))
	if tier == TierEnterprise {
		return 0
	}
	if pageCount < 1 {
		pageCount = 1
	}
	limits := LimitsFor(tier)
	credits := float64(pageCount) * limits.CreditsPerPage
	if credits < limits.MinCharge {
		credits = limits.MinCharge
	}
	return credits
}

// CheckQuota is the pure admission decision for an OCR request: the monthly
// cap must not be exhausted and the request must fit the per-request page
// ceiling. Returns a *QuotaExceededError describing the violated limit, or
// nil when allowed. No state is consulted beyond the arguments.
func CheckQuota(currentCount int, tier Tier, pageCount int) error {
	tier = NormalizeTier(string(tier))
	limits := LimitsFor(tier)

	if limits.MonthlyOCRLimit > 0 && currentCount >= limits.MonthlyOCRLimit {
		return &QuotaExceededError{
			Tier:         tier,
			Reason:       ReasonMonthlyCap,
			CurrentCount: currentCount,
			Limit:        limits.MonthlyOCRLimit,
		}
	}
	if limits.MaxPagesPerRequest > 0 && pageCount > limits.MaxPagesPerRequest {
		return &QuotaExceededError{
			Tier:         tier,
			Reason:       ReasonPageCap,
			CurrentCount: currentCount,
			Limit:        limits.MonthlyOCRLimit,
			PageCount:    pageCount,
			PageLimit:    limits.MaxPagesPerRequest,
		}
	}
	return nil
}
