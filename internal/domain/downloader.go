package domain

import (
	"context"
	"strconv"
	"strings"
)

// Engine is the external extraction and download engine
type Engine interface {
	// Probe resolves metadata without downloading media
	Probe(ctx context.Context, url string, opts ProbeOptions) (*Metadata, error)

	// Download fetches media and returns the final file path, reporting
	// progress through fn. A non-nil error returned by fn aborts the download
	// and is returned as is.
	Download(ctx context.Context, url string, opts DownloadOptions, fn ProgressFunc) (string, error)

	// ExportBrowserCookies reads the cookies of a browser profile
	ExportBrowserCookies(ctx context.Context, browser, url string) ([]Cookie, error)
}

// ProbeOptions configures a probe
type ProbeOptions struct {
	CookieFile string
}

// DownloadOptions configures a download
type DownloadOptions struct {
	CookieFile  string
	Quality     Quality
	AudioFormat string
	// Retries is handed to the engine, zero keeps the engine's default
	Retries int
	// OutputTemplate is the output path without extension
	OutputTemplate string
}

// Metadata is what a probe learns about a media item
type Metadata struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Ext       string  `json:"ext"`
	Extractor string  `json:"extractor"`
	Duration  float64 `json:"duration,omitempty"`
}

// ProgressUpdate is one raw progress report of the engine. Numeric fields are
// zero when unknown.
type ProgressUpdate struct {
	Status             string
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	PercentStr         string
	Filename           string
}

// ProgressFunc receives engine progress
type ProgressFunc func(ProgressUpdate) error

// Percent normalizes the update to [0,100]. Byte counts win over the estimate,
// the estimate over the engine's formatted percent string.
func (u ProgressUpdate) Percent() (float64, bool) {
	var pct float64
	switch {
	case u.TotalBytes > 0:
		pct = float64(u.DownloadedBytes) / float64(u.TotalBytes) * 100
	case u.TotalBytesEstimate > 0:
		pct = float64(u.DownloadedBytes) / float64(u.TotalBytesEstimate) * 100
	default:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(u.PercentStr), "%"))
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		pct = v
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct, true
}
