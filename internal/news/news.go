package news

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// Reasons recorded on an Item when the fetch time replaced its publish time.
const (
	FallbackMissing   = "missing"
	FallbackMalformed = "malformed"
)

// Item is one headline from a feed.
type Item struct {
	Title     string    `json:"title"`
	Published time.Time `json:"published"`
	Link      string    `json:"link"`
	Source    string    `json:"source"`
	Fallback  string    `json:"timestamp_fallback,omitempty"`
}

// ErrTimestampMissing is returned when an entry carries no publish date.
var ErrTimestampMissing = errors.New("entry has no publish timestamp")

// TimestampParseError reports a publish date that could not be parsed.
type TimestampParseError struct {
	Raw string
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("unparseable publish timestamp %q", e.Raw)
}

// SourceError records a feed that was skipped.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("feed %s: %v", e.Source, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }

// PublishedAt reads the publish time of a parsed feed entry. It returns
// ErrTimestampMissing or a *TimestampParseError when none can be read.
func PublishedAt(entry *gofeed.Item) (time.Time, error) {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed, nil
	}
	if entry.Published == "" {
		return time.Time{}, ErrTimestampMissing
	}
	return time.Time{}, &TimestampParseError{Raw: entry.Published}
}

// fallbackReason maps a PublishedAt error to the reason stored on an Item.
func fallbackReason(err error) string {
	var parseErr *TimestampParseError
	if errors.As(err, &parseErr) {
		return FallbackMalformed
	}
	return FallbackMissing
}
