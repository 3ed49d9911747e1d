package connector

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// feedItem is one raw item/entry from an RSS, RDF or Atom document.
type feedItem struct {
	title     string
	linkText  string
	linkHref  string // href attribute of a rel="alternate" (or bare) link
	guid      string
	summary   string
	published string
}

// link resolves the item URL: href attribute first, then link element
// text, then guid/id when it looks like an absolute URL.
func (it feedItem) link() string {
	if href := strings.TrimSpace(it.linkHref); href != "" {
		return href
	}
	if text := strings.TrimSpace(it.linkText); text != "" {
		return text
	}
	guid := strings.TrimSpace(it.guid)
	if strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}

// parseFeed walks the document tokens and collects item/entry nodes.
// Elements are matched on lowercase local name only, so namespaced
// variants (atom:entry, content:encoded, dc:date) all match.
func parseFeed(data []byte) ([]feedItem, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false

	var items []feedItem
	var current *feedItem

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			if end, ok := token.(xml.EndElement); ok && current != nil {
				local := strings.ToLower(end.Name.Local)
				if local == "item" || local == "entry" {
					items = append(items, *current)
					current = nil
				}
			}
			continue
		}

		local := strings.ToLower(start.Name.Local)
		if local == "item" || local == "entry" {
			current = &feedItem{}
			continue
		}
		if current == nil {
			continue
		}

		switch local {
		case "title":
			text, err := collectText(decoder)
			if err != nil {
				return nil, err
			}
			setIfEmpty(&current.title, text)
		case "link":
			href := attrValue(start, "href")
			rel := strings.ToLower(strings.TrimSpace(attrValue(start, "rel")))
			text, err := collectText(decoder)
			if err != nil {
				return nil, err
			}
			if href != "" && (rel == "" || rel == "alternate") {
				setIfEmpty(&current.linkHref, href)
			}
			setIfEmpty(&current.linkText, text)
		case "guid", "id":
			text, err := collectText(decoder)
			if err != nil {
				return nil, err
			}
			setIfEmpty(&current.guid, text)
		case "description", "summary", "content", "encoded":
			text, err := collectText(decoder)
			if err != nil {
				return nil, err
			}
			setIfEmpty(&current.summary, text)
		case "pubdate", "published", "updated", "date":
			text, err := collectText(decoder)
			if err != nil {
				return nil, err
			}
			setIfEmpty(&current.published, text)
		default:
			if err := decoder.Skip(); err != nil && err != io.EOF {
				return nil, err
			}
		}
	}
	return items, nil
}

// collectText consumes the element just opened and returns the
// concatenation of all character data inside it, including nested
// markup text.
func collectText(decoder *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			sb.Write(tok)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func attrValue(start xml.StartElement, name string) string {
	for _, attr := range start.Attr {
		if strings.ToLower(attr.Name.Local) == name {
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}

func setIfEmpty(target *string, value string) {
	if *target == "" && strings.TrimSpace(value) != "" {
		*target = value
	}
}
