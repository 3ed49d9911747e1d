package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rss2Doc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example World</title>
    <link>https://example.com/world</link>
    <item>
      <title>Border clashes escalate</title>
      <link>https://example.com/world/1</link>
      <guid isPermaLink="false">tag-1</guid>
      <description><![CDATA[<p>Heavy shelling reported.</p>]]></description>
      <pubDate>Mon, 02 Jun 2025 09:15:00 GMT</pubDate>
    </item>
    <item>
      <title>Trade talks resume</title>
      <link>https://example.com/world/2</link>
      <pubDate>Mon, 02 Jun 2025 08:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

const atomDoc = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Atom</title>
  <entry>
    <title>Cyclone nears coast</title>
    <link rel="alternate" href="https://example.org/storm"/>
    <link rel="self" href="https://example.org/storm.atom"/>
    <id>https://example.org/storm</id>
    <summary>Evacuations under way.</summary>
    <updated>2025-06-02T10:30:00Z</updated>
  </entry>
</feed>`

const rdfDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns="http://purl.org/rss/1.0/"
         xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel rdf:about="https://example.net/feed">
    <title>Example RDF</title>
  </channel>
  <item rdf:about="https://example.net/item1">
    <title>Sanctions package announced</title>
    <link>https://example.net/item1</link>
    <dc:date>2025-06-02T07:45:00Z</dc:date>
  </item>
</rdf:RDF>`

func TestParseFeedRSS2(t *testing.T) {
	items, err := parseFeed([]byte(rss2Doc))
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "Border clashes escalate", first.title)
	assert.Equal(t, "https://example.com/world/1", first.link())
	assert.Equal(t, "tag-1", first.guid)
	assert.Contains(t, first.summary, "Heavy shelling")
	assert.Equal(t, "Mon, 02 Jun 2025 09:15:00 GMT", first.published)

	// Channel-level title must not bleed into the items.
	assert.Equal(t, "Trade talks resume", items[1].title)
}

func TestParseFeedAtom(t *testing.T) {
	items, err := parseFeed([]byte(atomDoc))
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Cyclone nears coast", item.title)
	assert.Equal(t, "https://example.org/storm", item.link())
	assert.Equal(t, "Evacuations under way.", item.summary)
	assert.Equal(t, "2025-06-02T10:30:00Z", item.published)
}

func TestParseFeedRDF(t *testing.T) {
	items, err := parseFeed([]byte(rdfDoc))
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "Sanctions package announced", item.title)
	assert.Equal(t, "https://example.net/item1", item.link())
	assert.Equal(t, "2025-06-02T07:45:00Z", item.published)
}

func TestFeedItemLinkFallbacks(t *testing.T) {
	assert.Equal(t, "https://a.example/x",
		feedItem{linkHref: "https://a.example/x", linkText: "https://b.example/y"}.link())
	assert.Equal(t, "https://b.example/y",
		feedItem{linkText: "https://b.example/y", guid: "https://c.example/z"}.link())
	assert.Equal(t, "https://c.example/z",
		feedItem{guid: "https://c.example/z"}.link())
	assert.Equal(t, "", feedItem{guid: "not-a-url"}.link())
}

func TestParseFeedToleratesMissingFields(t *testing.T) {
	doc := `<rss><channel><item><title>Only a title</title></item></channel></rss>`
	items, err := parseFeed([]byte(doc))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Only a title", items[0].title)
	assert.Equal(t, "", items[0].link())
}
