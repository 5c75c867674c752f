package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<div class="row">
  <h1 data-test-selector="RC-courseHeader__name">
     Ascot <small>(GB)</small>
  </h1>
  <span data-test-selector="RC-cardPage-runnerNumber-no" data-order-no="3">3</span>
  <span data-test-selector="RC-cardPage-runnerNumber-draw" data-order-draw="">-</span>
  <span data-test-selector="RC-cardPage-runnerOr" data-order-or="–">–</span>
  <span data-test-selector="RC-empty"></span>
  <a data-test-selector="RC-cardPage-runnerName" href="/profile/horse/101/alpha">Alpha</a>
  <a data-test-selector="RC-cardPage-runnerName" href="/profile/horse/102/bravo">Bravo</a>
  <a data-test-selector="RC-cardPage-runnerName">No href</a>
  <span data-custom="flag">custom</span>
</div>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestFindTextMode(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, page)
	got := Find(doc.Selection, "h1", "RC-courseHeader__name")
	require.NotNil(t, got)
	assert.Equal(t, "Ascot (GB)", *got)
}

func TestFindEmptyNodeReturnsEmptyString(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, page)
	got := Find(doc.Selection, "span", "RC-empty")
	require.NotNil(t, got)
	assert.Equal(t, "", *got)
}

func TestFindAttributeMode(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, page)
	got := Find(doc.Selection, "span", "RC-cardPage-runnerNumber-no", Attr("data-order-no"))
	require.NotNil(t, got)
	assert.Equal(t, "3", *got)

	assert.Nil(t, Find(doc.Selection, "span", "RC-cardPage-runnerNumber-no", Attr("data-missing")))
}

func TestFindMissingNode(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, page)
	assert.Nil(t, Find(doc.Selection, "div", "RC-headerBox__winner"))
	assert.Nil(t, Find(doc.Selection, "h1", "RC-cardPage-runnerNumber-no"), "tag must match as well as marker")
	assert.Nil(t, Find(nil, "h1", "RC-courseHeader__name"))
}

func TestFindCustomProperty(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, page)
	got := Find(doc.Selection, "span", "flag", Property("data-custom"))
	require.NotNil(t, got)
	assert.Equal(t, "custom", *got)
}

func TestFindAll(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, page)
	hrefs := FindAll(doc.Selection, "a", "RC-cardPage-runnerName", "href")
	assert.Equal(t, []string{"/profile/horse/101/alpha", "/profile/horse/102/bravo"}, hrefs)
	assert.Nil(t, FindAll(nil, "a", "RC-cardPage-runnerName", "href"))
}

func TestInt(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, page)
	tests := []struct {
		name string
		in   *string
		want *int
	}{
		{name: "number", in: Find(doc.Selection, "span", "RC-cardPage-runnerNumber-no", Attr("data-order-no")), want: intPtr(3)},
		{name: "empty draw", in: Find(doc.Selection, "span", "RC-cardPage-runnerNumber-draw", Attr("data-order-draw"))},
		{name: "dash rating", in: Find(doc.Selection, "span", "RC-cardPage-runnerOr", Attr("data-order-or"))},
		{name: "nil", in: nil},
		{name: "padded", in: String(" 42 "), want: intPtr(42)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Int(tc.in))
		})
	}
}

func TestSelectorAndValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `a[data-test-selector="RC-x"]`, Selector("a", "RC-x"))
	assert.Equal(t, `a[href="/x"]`, Selector("a", "/x", Property("href")))
	assert.Equal(t, "", Value(nil))
	assert.Equal(t, "v", Value(String("v")))
}

func intPtr(n int) *int { return &n }
