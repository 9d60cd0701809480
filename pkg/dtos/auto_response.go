package dtos

// DTO for auto-response rules. Keyword is omitted for the fallback rule.
type AutoResponseRuleDTO struct {
	Keyword    *string `json:"keyword" binding:"omitempty,max=255"`
	MatchMode  string  `json:"match_mode" binding:"omitempty,oneof=exact contains"`
	Response   string  `json:"response" binding:"required,max=4096"`
	Active     *bool   `json:"active"`
	IsFallback bool    `json:"is_fallback"`
}
