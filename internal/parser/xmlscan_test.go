package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindElements(t *testing.T) {
	doc := `<Root><Item id="a" note="x>y"><Item id="nested"/></Item><ItemIndex/><Item id='b'>text &amp; more</Item></Root>`

	items := findElements(doc, "Item")
	require.Len(t, items, 2)

	assert.Equal(t, "a", items[0].Attr("id"))
	assert.Equal(t, "x>y", items[0].Attr("note"))
	assert.Equal(t, `<Item id="nested"/>`, items[0].Inner)
	assert.True(t, items[0].Complete)

	assert.Equal(t, "b", items[1].Attr("id"))
	assert.Equal(t, "text & more", items[1].Text())
}

func TestFindElementsTruncated(t *testing.T) {
	doc := `<Set a="1"><Rep id="1" bandwidth="100"/><Rep id="2" bandw`

	sets := findElements(doc, "Set")
	require.Len(t, sets, 1)
	assert.False(t, sets[0].Complete)

	reps := findElements(sets[0].Inner, "Rep")
	require.Len(t, reps, 2)
	assert.Equal(t, "100", reps[0].Attr("bandwidth"))
	assert.Equal(t, "2", reps[1].Attr("id"))
	assert.False(t, reps[1].Complete)
}

func TestStripElements(t *testing.T) {
	doc := `<A x="1"/><B><A>inner</A></B><A>tail</A>rest`
	assert.Equal(t, `<B></B>rest`, stripElements(doc, "A"))
	assert.Equal(t, `<A x="1"/><A>tail</A>rest`, stripElements(doc, "B"))
}

func TestParseTagAttrs(t *testing.T) {
	attrs := parseTagAttrs(` id="v1" cenc:default_KID="abc" media='seg-$Number$.m4s' title="Tom &amp; Jerry" bad=unquoted`)
	assert.Equal(t, "v1", attrs["id"])
	assert.Equal(t, "abc", attrs["cenc:default_KID"])
	assert.Equal(t, "seg-$Number$.m4s", attrs["media"])
	assert.Equal(t, "Tom & Jerry", attrs["title"])
	assert.NotContains(t, attrs, "bad")
}
