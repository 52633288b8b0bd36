package entity

import (
	"fmt"
	"sort"
)

type PolicyType string

const (
	PolicyFlexible      PolicyType = "flexible"
	PolicyModerate      PolicyType = "moderate"
	PolicyStrict        PolicyType = "strict"
	PolicyNonRefundable PolicyType = "non-refundable"
)

// RefundTier grants RefundPercentage when the guest cancels at least
// HoursBeforeCheckIn hours ahead of check-in.
type RefundTier struct {
	HoursBeforeCheckIn int `json:"hoursBeforeCheckIn"`
	RefundPercentage   int `json:"refundPercentage"`
}

type CancellationPolicy struct {
	Type        PolicyType   `json:"type"`
	Description string       `json:"description"`
	Tiers       []RefundTier `json:"tiers"`
}

var defaultPolicies = map[PolicyType]CancellationPolicy{
	PolicyFlexible: {
		Type:        PolicyFlexible,
		Description: "Full refund up to 7 days before check-in, 50% refund up to 1 day before check-in.",
		Tiers:       []RefundTier{{HoursBeforeCheckIn: 168, RefundPercentage: 100}, {HoursBeforeCheckIn: 24, RefundPercentage: 50}},
	},
	PolicyModerate: {
		Type:        PolicyModerate,
		Description: "Full refund up to 5 days before check-in, 50% refund up to 1 day before check-in.",
		Tiers:       []RefundTier{{HoursBeforeCheckIn: 120, RefundPercentage: 100}, {HoursBeforeCheckIn: 24, RefundPercentage: 50}},
	},
	PolicyStrict: {
		Type:        PolicyStrict,
		Description: "Full refund up to 14 days before check-in, 50% refund up to 7 days before check-in.",
		Tiers:       []RefundTier{{HoursBeforeCheckIn: 336, RefundPercentage: 100}, {HoursBeforeCheckIn: 168, RefundPercentage: 50}},
	},
	PolicyNonRefundable: {
		Type:        PolicyNonRefundable,
		Description: "No refund after booking.",
		Tiers:       []RefundTier{},
	},
}

func (t PolicyType) Valid() bool {
	_, ok := defaultPolicies[t]
	return ok
}

// DefaultPolicy returns a copy of the built-in tier table for t.
func DefaultPolicy(t PolicyType) (CancellationPolicy, bool) {
	p, ok := defaultPolicies[t]
	if !ok {
		return CancellationPolicy{}, false
	}
	p.Tiers = append([]RefundTier(nil), p.Tiers...)
	return p, true
}

// NewPolicy builds a listing policy. Empty tiers fall back to the
// built-in table for the type; non-refundable never carries tiers.
func NewPolicy(t PolicyType, tiers []RefundTier) (CancellationPolicy, error) {
	if !t.Valid() {
		return CancellationPolicy{}, fmt.Errorf("unknown cancellation policy %q", t)
	}
	p, _ := DefaultPolicy(t)
	if len(tiers) == 0 || t == PolicyNonRefundable {
		return p, nil
	}

	p.Tiers = append([]RefundTier(nil), tiers...)
	if err := p.Validate(); err != nil {
		return CancellationPolicy{}, err
	}
	p.Description = "Custom refund schedule."
	return p, nil
}

func (p CancellationPolicy) Validate() error {
	for _, t := range p.Tiers {
		if t.HoursBeforeCheckIn < 0 {
			return fmt.Errorf("refund tier threshold must not be negative, got %d", t.HoursBeforeCheckIn)
		}
		if t.RefundPercentage < 0 || t.RefundPercentage > 100 {
			return fmt.Errorf("refund percentage must be within 0-100, got %d", t.RefundPercentage)
		}
	}
	return nil
}

// SortedTiers returns tiers ordered by threshold, furthest from check-in first.
func (p CancellationPolicy) SortedTiers() []RefundTier {
	tiers := append([]RefundTier(nil), p.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].HoursBeforeCheckIn > tiers[j].HoursBeforeCheckIn
	})
	return tiers
}

// ApplicableTier picks the highest refund among tiers whose threshold is
// satisfied by hoursBeforeCheckIn. ok is false when no tier applies.
func (p CancellationPolicy) ApplicableTier(hoursBeforeCheckIn float64) (tier RefundTier, ok bool) {
	for _, t := range p.Tiers {
		if float64(t.HoursBeforeCheckIn) > hoursBeforeCheckIn {
			continue
		}
		if !ok || t.RefundPercentage > tier.RefundPercentage {
			tier, ok = t, true
		}
	}
	return tier, ok
}

// RefundPercentage is ApplicableTier collapsed to a percentage, 0 when none applies.
func (p CancellationPolicy) RefundPercentage(hoursBeforeCheckIn float64) int {
	tier, ok := p.ApplicableTier(hoursBeforeCheckIn)
	if !ok {
		return 0
	}
	return tier.RefundPercentage
}
