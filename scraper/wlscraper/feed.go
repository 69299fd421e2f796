package wlscraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

// Entry is a traffic info entry as published in the feed, before
// identifier normalization and line resolution
type Entry struct {
	Name        string
	Title       string
	Description string
	StartTime   time.Time
	Lines       []LineReference
}

// LineReference is a line code referenced by an Entry, with the feed line type string
type LineReference struct {
	Code string
	Type string
}

// ParseError is returned when the feed body can't be understood
type ParseError struct {
	// Index of the offending trafficInfos entry, -1 when the problem is with the document itself
	Index int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("parse feed: %v", e.Err)
	}
	return fmt.Sprintf("parse feed: entry %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errMissingField = errors.New("missing required field")

type responseStruct struct {
	Data *struct {
		TrafficInfos *[]trafficInfo `json:"trafficInfos"`
	} `json:"data"`
}

type trafficInfo struct {
	Name        *string `json:"name"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Time        *struct {
		Start *string `json:"start"`
	} `json:"time"`
	Attributes *struct {
		RelatedLineTypes *orderedLineTypes `json:"relatedLineTypes"`
	} `json:"attributes"`
}

// orderedLineTypes decodes a JSON object of line code to type string while
// keeping the order in which the codes appear in the document
type orderedLineTypes []LineReference

func (o *orderedLineTypes) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("relatedLineTypes is not an object")
	}
	refs := []LineReference{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		code, ok := tok.(string)
		if !ok {
			return errors.New("relatedLineTypes key is not a string")
		}
		var typeString string
		err = dec.Decode(&typeString)
		if err != nil {
			return fmt.Errorf("relatedLineTypes[%s]: %s", code, err)
		}
		refs = append(refs, LineReference{Code: code, Type: typeString})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = refs
	return nil
}

// ParseFeed parses a trafficInfoList response. Timestamps without a zone are
// interpreted in loc.
func ParseFeed(data []byte, loc *time.Location) ([]*Entry, error) {
	var response responseStruct
	err := json.Unmarshal(data, &response)
	if err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}
	if response.Data == nil || response.Data.TrafficInfos == nil {
		return nil, &ParseError{Index: -1, Err: fmt.Errorf("data.trafficInfos: %w", errMissingField)}
	}

	if loc == nil {
		loc = time.UTC
	}

	entries := make([]*Entry, 0, len(*response.Data.TrafficInfos))
	for i, info := range *response.Data.TrafficInfos {
		entry, err := info.toEntry(i, loc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (info *trafficInfo) toEntry(index int, loc *time.Location) (*Entry, error) {
	missing := func(field string) error {
		return &ParseError{Index: index, Field: field, Err: errMissingField}
	}
	switch {
	case info.Name == nil:
		return nil, missing("name")
	case info.Title == nil:
		return nil, missing("title")
	case info.Description == nil:
		return nil, missing("description")
	case info.Time == nil || info.Time.Start == nil:
		return nil, missing("time.start")
	case info.Attributes == nil || info.Attributes.RelatedLineTypes == nil:
		return nil, missing("attributes.relatedLineTypes")
	}

	startTime, err := dateparse.ParseIn(*info.Time.Start, loc)
	if err != nil {
		return nil, &ParseError{Index: index, Field: "time.start", Err: err}
	}

	return &Entry{
		Name:        *info.Name,
		Title:       *info.Title,
		Description: plainText(*info.Description),
		StartTime:   startTime,
		Lines:       []LineReference(*info.Attributes.RelatedLineTypes),
	}, nil
}

// markupTag matches an opening or closing HTML tag such as <br>, <b > or </p>
var markupTag = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][a-zA-Z0-9]*(\s[^<>]*)?/?>`)

// plainText returns the text content of descriptions that contain markup and
// returns all other descriptions unchanged
func plainText(description string) string {
	if !markupTag.MatchString(description) {
		return description
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return description
	}
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text())
}
