package entity

import "time"

// DefaultTicker labels a run whose new items carry no news ticker.
const DefaultTicker = "MKT"

// Card is the input of the sentiment card image.
type Card struct {
	Ticker    string
	Sentiment Sentiment
	Reason    string
	Date      time.Time
}

// ReportEntry is one analysed run appended to the daily report.
// ImageName is empty when no card was rendered.
type ReportEntry struct {
	Date      time.Time
	Ticker    string
	Result    AnalysisResult
	ImageName string
}

// DateKey formats t as the UTC day used for report and card file names.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
