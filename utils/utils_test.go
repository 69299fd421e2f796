package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldText(t *testing.T) {
	assert.Equal(t, "storung auf der u6", FoldText("  Störung   auf der\tU6 "))
	assert.Equal(t, "kurzfuhrung", FoldText("KURZFÜHRUNG"))
	assert.Equal(t, "", FoldText(""))
}

func TestRemoveDiacritics(t *testing.T) {
	assert.Equal(t, "Gelost", RemoveDiacritics("Gelöst"))
	assert.Equal(t, "Strasse", RemoveDiacritics("Strasse"))
}
