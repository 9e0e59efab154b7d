package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SpriteSize is the pixel dimensions requested for a sprite.
type SpriteSize struct {
	Width  int `json:"width" validate:"required,min=16,max=512"`
	Height int `json:"height" validate:"required,min=16,max=512"`
}

// PromptOptions carries the optional generation knobs forwarded to the
// upstream provider. Only these three keys participate in cache keying;
// anything else a client sends is dropped at decode time.
type PromptOptions struct {
	NoBackground      *bool    `json:"noBackground,omitempty"`
	PaletteImage      string   `json:"paletteImage,omitempty" validate:"omitempty,base64"`
	TextGuidanceScale *float64 `json:"textGuidanceScale,omitempty" validate:"omitempty,min=1,max=20"`
}

// StructuredPrompt is the canonical description of a sprite generation
// request. Values are immutable once constructed; Normalized returns a
// cleaned copy rather than mutating in place.
type StructuredPrompt struct {
	Type        string         `json:"type" validate:"required,max=64"`
	Style       string         `json:"style" validate:"max=64"`
	Size        SpriteSize     `json:"size" validate:"required"`
	Action      string         `json:"action" validate:"max=120"`
	Description string         `json:"description" validate:"max=2000"`
	Raw         string         `json:"raw" validate:"max=4000"`
	Options     *PromptOptions `json:"options,omitempty"`
}

const (
	MinSpriteDimension = 16
	MaxSpriteDimension = 512
)

// foldText trims surrounding whitespace and applies a Unicode lowercase
// mapping so cosmetic case differences collapse to one cache key.
func foldText(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}

// Normalized returns a copy of the prompt with every free-text field
// trimmed and lowercased. The palette image is carried through untouched:
// it is base64 payload, not text.
func (p StructuredPrompt) Normalized() StructuredPrompt {
	out := StructuredPrompt{
		Type:        foldText(p.Type),
		Style:       foldText(p.Style),
		Size:        p.Size,
		Action:      foldText(p.Action),
		Description: foldText(p.Description),
		Raw:         foldText(p.Raw),
	}
	if p.Options != nil {
		opts := PromptOptions{PaletteImage: p.Options.PaletteImage}
		if p.Options.NoBackground != nil {
			v := *p.Options.NoBackground
			opts.NoBackground = &v
		}
		if p.Options.TextGuidanceScale != nil {
			v := *p.Options.TextGuidanceScale
			opts.TextGuidanceScale = &v
		}
		if opts.NoBackground != nil || opts.PaletteImage != "" || opts.TextGuidanceScale != nil {
			out.Options = &opts
		}
	}
	return out
}

// canonical builds the normalized prompt as nested maps so encoding/json
// emits keys in alphabetical order at every nesting level. Struct
// marshalling would follow declaration order instead, which is not stable
// across reorderings of semantically equal inputs.
func (p StructuredPrompt) canonical() map[string]any {
	n := p.Normalized()
	m := map[string]any{
		"action":      n.Action,
		"description": n.Description,
		"raw":         n.Raw,
		"size": map[string]any{
			"height": n.Size.Height,
			"width":  n.Size.Width,
		},
		"style": n.Style,
		"type":  n.Type,
	}
	if n.Options != nil {
		opts := map[string]any{}
		if n.Options.NoBackground != nil {
			opts["noBackground"] = *n.Options.NoBackground
		}
		if n.Options.PaletteImage != "" {
			opts["paletteImage"] = n.Options.PaletteImage
		}
		if n.Options.TextGuidanceScale != nil {
			opts["textGuidanceScale"] = *n.Options.TextGuidanceScale
		}
		m["options"] = opts
	}
	return m
}

// CacheKey derives the deterministic content address for the prompt: the
// SHA-256 of its canonical serialization, hex encoded. Two prompts that
// differ only in text case, surrounding whitespace, or option key order
// produce the same key; prompts with different palette image bytes never
// collide into one.
func (p StructuredPrompt) CacheKey() string {
	data, _ := json.Marshal(p.canonical())
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate rejects prompts the pipeline cannot act on. Field-level
// validation happens at the API edge; this is the last check before a
// prompt is keyed and enqueued.
func (p StructuredPrompt) Validate() error {
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidPrompt)
	}
	if strings.TrimSpace(p.Description) == "" && strings.TrimSpace(p.Raw) == "" {
		return fmt.Errorf("%w: description or raw text is required", ErrInvalidPrompt)
	}
	if p.Size.Width < MinSpriteDimension || p.Size.Width > MaxSpriteDimension {
		return fmt.Errorf("%w: width must be between %d and %d", ErrInvalidPrompt, MinSpriteDimension, MaxSpriteDimension)
	}
	if p.Size.Height < MinSpriteDimension || p.Size.Height > MaxSpriteDimension {
		return fmt.Errorf("%w: height must be between %d and %d", ErrInvalidPrompt, MinSpriteDimension, MaxSpriteDimension)
	}
	if p.Options != nil && p.Options.TextGuidanceScale != nil {
		if v := *p.Options.TextGuidanceScale; v < 1 || v > 20 {
			return fmt.Errorf("%w: textGuidanceScale must be between 1 and 20", ErrInvalidPrompt)
		}
	}
	return nil
}
