// Package render draws the 1200x675 sentiment card attached to each post.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
)

// Card geometry in pixels.
const (
	Width  = 1200
	Height = 675

	tickerSize    = 120
	sentimentSize = 60
	reasonSize    = 32

	tickerTop    = 100
	sentimentTop = 280
	dividerY     = 380
	dividerInset = 100
	reasonLeft   = 80
	reasonTop    = 420
	reasonWidth  = Width - 2*reasonLeft
	lineSpacing  = 8
)

var (
	bullishBG = color.RGBA{R: 16, G: 138, B: 62, A: 255}
	bearishBG = color.RGBA{R: 190, G: 30, B: 45, A: 255}
	textColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	subColor  = color.RGBA{R: 220, G: 220, B: 220, A: 255}
)

// ErrInvalidCard is returned for a card without a ticker or sentiment.
var ErrInvalidCard = errors.New("invalid card")

// CardConfig configures CardRenderer.
type CardConfig struct {
	// Dir receives the PNG files.
	Dir string

	// FontPath optionally points at a TrueType/OpenType font used for the
	// reason text. The bundled Go fonts have no CJK glyphs.
	FontPath string
}

// CardRenderer implements pipeline.CardRenderer.
type CardRenderer struct {
	dir    string
	logger *slog.Logger

	mu        sync.Mutex // font.Face is not safe for concurrent use
	ticker    font.Face
	sentiment font.Face
	reason    font.Face
}

// NewCardRenderer parses the fonts once and returns a renderer.
func NewCardRenderer(cfg CardConfig, logger *slog.Logger) (*CardRenderer, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Dir == "" {
		return nil, errors.New("card directory cannot be empty")
	}

	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	reasonFont, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	if cfg.FontPath != "" {
		data, err := os.ReadFile(cfg.FontPath)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", cfg.FontPath, err)
		}
		if reasonFont, err = opentype.Parse(data); err != nil {
			return nil, fmt.Errorf("parse font %s: %w", cfg.FontPath, err)
		}
	}

	r := &CardRenderer{dir: cfg.Dir, logger: logger}
	if r.ticker, err = newFace(bold, tickerSize); err != nil {
		return nil, err
	}
	if r.sentiment, err = newFace(bold, sentimentSize); err != nil {
		return nil, err
	}
	if r.reason, err = newFace(reasonFont, reasonSize); err != nil {
		return nil, err
	}
	return r, nil
}

func newFace(f *opentype.Font, size float64) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create %.0fpx face: %w", size, err)
	}
	return face, nil
}

// RenderCard draws card and writes it to {dir}/{YYYY-MM-DD}_{TICKER}.png,
// returning the path.
func (r *CardRenderer) RenderCard(ctx context.Context, card entity.Card) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ticker := fileSafe(card.Ticker)
	if ticker == "" {
		return "", fmt.Errorf("%w: empty ticker", ErrInvalidCard)
	}
	if _, err := entity.ParseSentiment(string(card.Sentiment)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCard, err)
	}

	img := r.Draw(card)

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create card dir: %w", err)
	}
	path := filepath.Join(r.dir, entity.DateKey(card.Date)+"_"+ticker+".png")
	if err := writePNG(path, img); err != nil {
		return "", err
	}

	r.logger.InfoContext(ctx, "card rendered",
		slog.String("path", path),
		slog.String("ticker", card.Ticker),
		slog.String("sentiment", string(card.Sentiment)))
	return path, nil
}

// Draw paints card onto a new RGBA image.
func (r *CardRenderer) Draw(card entity.Card) *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()

	bg := bearishBG
	label := "↓ BEARISH"
	if card.Sentiment == entity.SentimentBullish {
		bg = bullishBG
		label = "↑ BULLISH"
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	drawCentered(img, r.ticker, "$"+card.Ticker, tickerTop, textColor)
	drawCentered(img, r.sentiment, label, sentimentTop, textColor)

	divider := image.Rect(dividerInset, dividerY, Width-dividerInset, dividerY+2)
	draw.Draw(img, divider, image.NewUniform(subColor), image.Point{}, draw.Src)

	lineHeight := r.reason.Metrics().Height.Ceil() + lineSpacing
	y := reasonTop
	for _, line := range wrap(r.reason, card.Reason, reasonWidth) {
		if y+lineHeight > Height {
			break
		}
		drawText(img, r.reason, line, reasonLeft, y, subColor)
		y += lineHeight
	}
	return img
}

// wrap breaks s into lines no wider than maxWidth, one rune at a time so
// text without spaces wraps too.
func wrap(face font.Face, s string, maxWidth int) []string {
	var lines []string
	var current []rune
	for _, r := range s {
		if r == '\n' {
			lines = append(lines, string(current))
			current = current[:0]
			continue
		}
		candidate := append(current, r)
		if font.MeasureString(face, string(candidate)).Ceil() <= maxWidth || len(current) == 0 {
			current = candidate
			continue
		}
		lines = append(lines, string(current))
		current = []rune{r}
	}
	if len(current) > 0 {
		lines = append(lines, string(current))
	}
	return lines
}

func drawCentered(dst draw.Image, face font.Face, s string, top int, c color.Color) {
	w := font.MeasureString(face, s).Ceil()
	drawText(dst, face, s, (Width-w)/2, top, c)
}

// drawText draws s with its top edge at y.
func drawText(dst draw.Image, face font.Face, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func writePNG(path string, img image.Image) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".card-*.png")
	if err != nil {
		return fmt.Errorf("create temp card: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp card: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename card: %w", err)
	}
	return nil
}

// fileSafe keeps letters, digits, dot and hyphen.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, strings.TrimSpace(s))
}
