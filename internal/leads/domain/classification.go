package domain

// Patrimonial tiers, from the declared net worth.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// Risk profiles, from the declared leverage.
const (
	RiskConservative = "conservative"
	RiskBalanced     = "balanced"
	RiskAggressive   = "aggressive"
)

const (
	// Net worth thresholds in cents (R$ 1.000.000 and R$ 100.000).
	tierHighThresholdCents   = 100_000_000
	tierMediumThresholdCents = 10_000_000

	maxEngagementScore       = 100
	qualifiedScoreThreshold  = 40
	aggressiveLeverageRatio  = 0.5
	balancedLeverageRatio    = 0.2
)

// crmQualifyingStages are the CRM pipeline stages that mark a contact as
// sales-qualified regardless of engagement.
var crmQualifyingStages = map[string]bool{
	"negotiation": true,
	"proposal":    true,
	"won":         true,
}

// Classification is the set of derived fields stored on a lead.
type Classification struct {
	Qualified        bool
	EngagementScore  int
	PatrimonialTier  string
	RiskProfile      string
	AssetsTotalCents *int64
	DebtsTotalCents  *int64
	NetWorthCents    *int64
}

// Classify recomputes every derived field from scratch given the lead's
// current per-source snapshots. Derived state is never patched
// incrementally: stored classifications must always equal a fresh
// recomputation from the stored snapshots.
func Classify(chat *ChatFacts, declaration *DeclarationSnapshot, crm *CRMFacts) Classification {
	var c Classification

	if chat != nil {
		score := chat.ConversationCount*10 + chat.MessageCount*2
		if score > maxEngagementScore {
			score = maxEngagementScore
		}
		c.EngagementScore = score
	}

	if declaration != nil {
		assets := declaration.AssetsTotalCents
		debts := declaration.DebtsTotalCents
		net := declaration.NetWorthCents
		c.AssetsTotalCents = &assets
		c.DebtsTotalCents = &debts
		c.NetWorthCents = &net

		switch {
		case net >= tierHighThresholdCents:
			c.PatrimonialTier = TierHigh
		case net >= tierMediumThresholdCents:
			c.PatrimonialTier = TierMedium
		default:
			c.PatrimonialTier = TierLow
		}

		c.RiskProfile = RiskConservative
		if assets > 0 {
			leverage := float64(debts) / float64(assets)
			switch {
			case leverage > aggressiveLeverageRatio:
				c.RiskProfile = RiskAggressive
			case leverage > balancedLeverageRatio:
				c.RiskProfile = RiskBalanced
			}
		}
	}

	c.Qualified = c.EngagementScore >= qualifiedScoreThreshold ||
		c.PatrimonialTier == TierHigh ||
		(crm != nil && crmQualifyingStages[crm.Stage])

	return c
}
