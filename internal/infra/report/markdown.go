// Package report appends analysed runs to a per-day Markdown file.
package report

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/observability/logging"
)

// MarkdownWriter implements pipeline.ReportWriter. Files are named
// {dir}/YYYY-MM-DD.md by UTC date.
type MarkdownWriter struct {
	dir    string
	logger *slog.Logger
}

// NewMarkdownWriter returns a writer rooted at dir.
func NewMarkdownWriter(dir string, logger *slog.Logger) *MarkdownWriter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &MarkdownWriter{dir: dir, logger: logger}
}

// Path returns the report file for a YYYY-MM-DD date key.
func (w *MarkdownWriter) Path(date string) string {
	return filepath.Join(w.dir, date+".md")
}

// Append writes entry to the day's report, creating the file with its
// header first when it does not exist yet.
func (w *MarkdownWriter) Append(ctx context.Context, entry entity.ReportEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	date := entity.DateKey(entry.Date)
	path := w.Path(date)

	var b strings.Builder
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		b.WriteString(Header(date))
	} else if err != nil {
		return "", fmt.Errorf("stat report: %w", err)
	}
	b.WriteString(FormatEntry(entry))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open report: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}

	w.logger.InfoContext(ctx, "report appended",
		slog.String("path", path),
		slog.String("ticker", entry.Ticker))
	return path, nil
}

// Header is the first block of a new daily report.
func Header(date string) string {
	return fmt.Sprintf("# Daily US Stock Report — %s\n\n", date)
}

// FormatEntry renders one report section.
func FormatEntry(entry entity.ReportEntry) string {
	image := "N/A"
	if entry.ImageName != "" {
		image = "`" + entry.ImageName + "`"
	}
	r := entry.Result

	var b strings.Builder
	fmt.Fprintf(&b, "## $%s %s %s\n\n", entry.Ticker, r.Sentiment.Emoji(), r.Sentiment)
	b.WriteString("**Post:**\n")
	for _, line := range strings.Split(r.PostText, "\n") {
		b.WriteString("> " + line + "\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "**Reason:** %s\n\n", r.Reason)
	fmt.Fprintf(&b, "**Image:** %s\n\n", image)
	b.WriteString("---\n\n")
	return b.String()
}
