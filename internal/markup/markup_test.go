package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailorder/internal"
)

const sample = `@#Subject - Restock order
@#From - buyer@retail.example
@#To- sales@maker.example
@#Body- Hello,
Wireless Bluetooth Earbuds Pro 5 units
Stainless Steel Water Bottle 750mL 2 pack
Thanks`

func TestExtractMetadata(t *testing.T) {
	meta := ExtractMetadata(sample)
	assert.Equal(t, internal.Metadata{
		Subject: "Restock order",
		From:    "buyer@retail.example",
		To:      "sales@maker.example",
	}, meta)
}

func TestExtractMetadataMissingTags(t *testing.T) {
	meta := ExtractMetadata("@#From -a@b.example")
	assert.Equal(t, "", meta.Subject)
	assert.Equal(t, "a@b.example", meta.From)
	assert.Equal(t, "", meta.To)
}

func TestTagKeywordIsCaseSensitive(t *testing.T) {
	_, ok := Field("@#subject - lower", TagSubject)
	assert.False(t, ok)
}

func TestIsolateBodySpansLines(t *testing.T) {
	body, ok := IsolateBody(sample)
	require.True(t, ok)
	assert.Equal(t, "Hello,\nWireless Bluetooth Earbuds Pro 5 units\nStainless Steel Water Bottle 750mL 2 pack\nThanks", body)
}

func TestIsolateBodyStopsAtNextTag(t *testing.T) {
	body, ok := IsolateBody("@#Body- first line\nsecond @#Signature- ignored")
	require.True(t, ok)
	assert.Equal(t, "first line\nsecond", body)
}

func TestParseWithoutBody(t *testing.T) {
	msg := Parse("@#Subject - hi")
	assert.False(t, msg.HasBody)
	assert.Equal(t, "", msg.Body)
	assert.Contains(t, msg.Warnings, "missing Body tag")
	assert.Contains(t, msg.Warnings, "missing From tag")
	assert.NotContains(t, msg.Warnings, "missing Subject tag")
}

func TestParseRendersHTMLBody(t *testing.T) {
	msg := Parse(`@#Body- <table><tr><td>Wireless Bluetooth Earbuds Pro</td><td>5 units</td></tr></table><p>special request</p>`)
	require.True(t, msg.HasBody)
	assert.Equal(t, "Wireless Bluetooth Earbuds Pro 5 units\nspecial request", msg.Body)
}

func TestRenderRoundTrip(t *testing.T) {
	meta := internal.Metadata{Subject: "PO 42", From: "a@b.example", To: "c@d.example"}
	text := Render(meta, "line one\nline @#two")

	msg := Parse(text)
	assert.Equal(t, meta, msg.Metadata)
	assert.Equal(t, "line one\nline @ #two", msg.Body)
	assert.Empty(t, msg.Warnings)
}
