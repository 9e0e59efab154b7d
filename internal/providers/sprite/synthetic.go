package sprite

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"time"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/domain"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
)

// Synthetic renders deterministic placeholder sprites so the whole
// pipeline runs without PixelLab credentials. The same prompt always
// produces the same frame, which keeps cache and dedup behavior
// observable in local and CI environments.
type Synthetic struct {
	logger infra.Logger
}

func NewSynthetic(logger infra.Logger) *Synthetic {
	return &Synthetic{logger: logger}
}

var _ Generator = (*Synthetic)(nil)

func (s *Synthetic) Generate(ctx context.Context, prompt domain.StructuredPrompt, onProgress ProgressFunc) (*domain.GenerationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()
	if onProgress != nil {
		onProgress(0, "submitted")
		onProgress(50, "rendering")
	}

	seed := prompt.CacheKey()
	width, height := prompt.Size.Width, prompt.Size.Height
	if width <= 0 {
		width = 64
	}
	if height <= 0 {
		height = 64
	}
	data := renderSpriteFrame(width, height, seed)
	if onProgress != nil {
		onProgress(100, "complete")
	}

	s.logger.Debug().Str("cache_key", seed).Msg("synthetic: rendered placeholder sprite")

	return &domain.GenerationResult{
		Frames: []domain.SpriteFrame{{
			Image:  base64.StdEncoding.EncodeToString(data),
			Width:  width,
			Height: height,
		}},
		Provider:   "synthetic",
		Model:      "placeholder",
		DurationMS: time.Since(started).Milliseconds(),
	}, nil
}

// renderSpriteFrame paints a mirrored pixel pattern: cells on the left
// half come from the seed and are reflected onto the right, which is
// what makes the output read as a creature-ish sprite.
func renderSpriteFrame(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	background := color.RGBA{0, 0, 0, 0}
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	body := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)

	cell := maxInt(1, minInt(width, height)/16)
	half := (width + 1) / 2
	for y := 0; y < height; y += cell {
		for x := 0; x < half; x += cell {
			bit := seedBit(seed, x/cell, y/cell)
			if bit == 0 {
				continue
			}
			c := body
			if bit == 2 {
				c = accent
			}
			block := image.Rect(x, y, minInt(half, x+cell), minInt(height, y+cell))
			draw.Draw(img, block, &image.Uniform{c}, image.Point{}, draw.Src)
			mirrored := image.Rect(width-(x+cell), y, width-x, minInt(height, y+cell))
			draw.Draw(img, mirrored, &image.Uniform{c}, image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func seedBit(seed string, x, y int) int {
	if seed == "" {
		return 0
	}
	idx := (x*31 + y*17) % len(seed)
	c := seed[idx]
	switch {
	case c%3 == 0:
		return 0
	case c%3 == 1:
		return 1
	default:
		return 2
	}
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = seed + "0f0f0f"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
