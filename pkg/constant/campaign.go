package constant

const (
	CAMPAIGN            = "Campaign"
	AUTO_RESPONSE_RULE  = "Auto response rule"
	CAMPAIGN_STARTED    = "Campaign queued for dispatch"
	CAMPAIGN_PAUSED     = "Campaign paused"
	CAMPAIGN_RESUMED    = "Campaign resumed"
	CAMPAIGN_CANCELLED  = "Campaign cancelled"
	INVALID_TRANSITION  = "campaign cannot change to that status"
	EMPTY_CONTACTS      = "campaign needs at least one contact"
	INVALID_DELAY_RANGE = "delay_min cannot be greater than delay_max"
	DUPLICATE_KEYWORD   = "a rule with this keyword already exists"
	DUPLICATE_FALLBACK  = "a fallback rule already exists"
	INVALID_RULE        = "rule needs a keyword or must be the fallback"
	RECONCILED          = "%d stale campaigns returned to pending"
)
