package wlscraper

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cet = time.FixedZone("CET", 3600)

const sampleFeed = `{
  "data": {
    "trafficInfos": [
      {
        "name": "ma_1001-2",
        "title": "U6 Verspätung",
        "description": "Wegen eines Polizeieinsatzes kommt es zu Verspätungen.",
        "time": {"start": "2024-03-01 07:15:00"},
        "attributes": {"relatedLineTypes": {"U6": "ptMetro", "42": "ptTram", "N6": "ptBusNight"}}
      },
      {
        "name": "ma_1002-1-3",
        "title": "13A Umleitung",
        "description": "<p>Umleitung wegen <b>Bauarbeiten</b></p>",
        "time": {"start": "2024-03-01T08:00:00+01:00"},
        "attributes": {"relatedLineTypes": {}}
      }
    ]
  }
}`

func TestParseFeed(t *testing.T) {
	entries, err := ParseFeed([]byte(sampleFeed), cet)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "ma_1001-2", first.Name)
	assert.Equal(t, "U6 Verspätung", first.Title)
	assert.Equal(t, "Wegen eines Polizeieinsatzes kommt es zu Verspätungen.", first.Description)
	assert.True(t, first.StartTime.Equal(time.Date(2024, 3, 1, 6, 15, 0, 0, time.UTC)))
	assert.Equal(t, []LineReference{
		{Code: "U6", Type: "ptMetro"},
		{Code: "42", Type: "ptTram"},
		{Code: "N6", Type: "ptBusNight"},
	}, first.Lines)

	second := entries[1]
	assert.Equal(t, "Umleitung wegen Bauarbeiten", second.Description)
	assert.True(t, second.StartTime.Equal(time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)))
	assert.Empty(t, second.Lines)
}

func TestParseFeedEmptyList(t *testing.T) {
	entries, err := ParseFeed([]byte(`{"data":{"trafficInfos":[]}}`), cet)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseFeedErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		index int
		field string
	}{
		{"not json", `<html></html>`, -1, ""},
		{"missing data", `{}`, -1, ""},
		{"missing list", `{"data":{}}`, -1, ""},
		{"missing name", `{"data":{"trafficInfos":[{"title":"a","description":"b","time":{"start":"2024-03-01 07:15:00"},"attributes":{"relatedLineTypes":{}}}]}}`, 0, "name"},
		{"missing start", `{"data":{"trafficInfos":[{"name":"x","title":"a","description":"b","time":{},"attributes":{"relatedLineTypes":{}}}]}}`, 0, "time.start"},
		{"missing line types", `{"data":{"trafficInfos":[{"name":"x","title":"a","description":"b","time":{"start":"2024-03-01 07:15:00"},"attributes":{}}]}}`, 0, "attributes.relatedLineTypes"},
		{"bad start", `{"data":{"trafficInfos":[{"name":"x","title":"a","description":"b","time":{"start":"yesterday-ish"},"attributes":{"relatedLineTypes":{}}}]}}`, 0, "time.start"},
		{"line types not an object", `{"data":{"trafficInfos":[{"name":"x","title":"a","description":"b","time":{"start":"2024-03-01 07:15:00"},"attributes":{"relatedLineTypes":["U1"]}}]}}`, -1, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseFeed([]byte(test.body), cet)
			require.Error(t, err)
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, test.index, parseErr.Index)
			assert.Equal(t, test.field, parseErr.Field)
		})
	}
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Keine Störung", plainText("Keine Störung"))
	assert.Equal(t, "a < b", plainText("a < b"))
	assert.Equal(t, "Signalstörung", plainText("<div><p>Signalstörung</p></div>"))
	assert.Equal(t, "Zeile 1\nZeile 2", plainText("Zeile 1<br />Zeile 2"))

	// angle brackets that don't form tags are plain text
	for _, text := range []string{
		"Karlsplatz <> Stephansplatz",
		"  U1 <-> U4 &amp; mehr\r\n",
		"Intervall < 5 Minuten, Wartezeit > 10 Minuten",
	} {
		assert.Equal(t, text, plainText(text))
	}
}
