package domain

import "time"

// SpriteFrame is a single generated image. Image holds base64 PNG bytes
// when the provider returns inline content; URL points at hosted output
// when it does not. At least one of the two is always set.
type SpriteFrame struct {
	Image  string `json:"image,omitempty"`
	URL    string `json:"url,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// GenerationResult is the upstream provider's answer for one prompt.
type GenerationResult struct {
	Frames     []SpriteFrame `json:"frames"`
	Provider   string        `json:"provider,omitempty"`
	Model      string        `json:"model,omitempty"`
	DurationMS int64         `json:"durationMs,omitempty"`
}

// CacheEntry is one cached generation keyed by the prompt's content
// address. Hits and LastAccessedAt are bookkeeping mutated on reads;
// everything else is written once.
type CacheEntry struct {
	CacheKey       string            `json:"cacheKey"`
	UserID         string            `json:"userId"`
	Prompt         StructuredPrompt  `json:"prompt"`
	Result         *GenerationResult `json:"result"`
	CreatedAt      time.Time         `json:"createdAt"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	Hits           int64             `json:"hits"`
	LastAccessedAt time.Time         `json:"lastAccessedAt"`
}

// Expired applies the read-time TTL check: entries past their expiry are
// treated as misses even while still physically present in a store.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
