package notion

import (
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	props := notionapi.Properties{
		"Name": &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Acme "}, {PlainText: "GmbH"}}},
		"Row":  Text("row-1"),
		"Tier": Select("high"),
	}

	assert.Equal(t, "Acme GmbH", PlainText(props, "Name"))
	assert.Equal(t, "row-1", PlainText(props, "Row"))
	assert.Empty(t, PlainText(props, "Tier"))
	assert.Empty(t, PlainText(props, "Missing"))
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, notionapi.PropertyTypeTitle, Title("x").Type)
	assert.Equal(t, "high", Select("high").Select.Name)
	assert.Equal(t, 0.5, Number(0.5).Number)
	assert.Equal(t, "https://acme.de", URL("https://acme.de").URL)

	long := Text(strings.Repeat("ä", maxTextLen+10))
	assert.Equal(t, maxTextLen, len([]rune(long.RichText[0].Text.Content)))
}
