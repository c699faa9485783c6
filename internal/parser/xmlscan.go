package parser

import (
	"html"
	"regexp"
	"strings"
)

// element is one tag region found by the scanner. Complete is false when
// the document ended before the closing tag (or before the end of the
// opening tag itself).
type element struct {
	Name     string
	Attrs    map[string]string
	Inner    string
	Complete bool
}

// Attr returns an attribute value or "".
func (e element) Attr(name string) string {
	return e.Attrs[name]
}

// Text returns the element's character data with tags removed.
func (e element) Text() string {
	return strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(e.Inner, "")))
}

var (
	attrRe = regexp.MustCompile(`([A-Za-z_][-A-Za-z0-9_:.]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	tagRe  = regexp.MustCompile(`<[^>]*>`)
)

// stripMarkup removes comments and unwraps CDATA sections so the tag
// scanner only sees live markup. CDATA text is escaped so any '<' in it
// cannot start a tag. An unterminated comment or CDATA section runs to
// the end of doc.
func stripMarkup(doc string) string {
	if !strings.Contains(doc, "<!--") && !strings.Contains(doc, "<![CDATA[") {
		return doc
	}
	var b strings.Builder
	b.Grow(len(doc))
	for {
		c := strings.Index(doc, "<!--")
		d := strings.Index(doc, "<![CDATA[")
		switch {
		case c < 0 && d < 0:
			b.WriteString(doc)
			return b.String()
		case d < 0 || (c >= 0 && c < d):
			b.WriteString(doc[:c])
			end := strings.Index(doc[c+4:], "-->")
			if end < 0 {
				return b.String()
			}
			doc = doc[c+4+end+3:]
		default:
			b.WriteString(doc[:d])
			body := doc[d+9:]
			end := strings.Index(body, "]]>")
			if end < 0 {
				b.WriteString(html.EscapeString(body))
				return b.String()
			}
			b.WriteString(html.EscapeString(body[:end]))
			doc = body[end+3:]
		}
	}
}

// parseTagAttrs extracts attr="value" pairs from an opening tag's text.
func parseTagAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(tag, -1) {
		v := m[2]
		if v == "" {
			v = m[3]
		}
		attrs[m[1]] = html.UnescapeString(v)
	}
	return attrs
}

// findElements returns the outermost <name> regions in doc, in order.
// Same-named descendants stay inside their ancestor's Inner. Truncated
// input yields a final incomplete element rather than an error.
func findElements(doc, name string) []element {
	var out []element
	pos := 0
	for {
		start := indexTag(doc, "<"+name, pos)
		if start < 0 {
			return out
		}
		openEnd := tagEnd(doc, start)
		if openEnd < 0 {
			out = append(out, element{Name: name, Attrs: parseTagAttrs(doc[start+len(name)+1:])})
			return out
		}

		open := doc[start+len(name)+1 : openEnd]
		el := element{Name: name, Attrs: parseTagAttrs(open)}
		if strings.HasSuffix(strings.TrimSpace(open), "/") {
			el.Complete = true
			out = append(out, el)
			pos = openEnd + 1
			continue
		}

		innerStart := openEnd + 1
		closeStart, closeEnd := matchClose(doc, name, innerStart)
		if closeStart < 0 {
			el.Inner = doc[innerStart:]
			out = append(out, el)
			return out
		}
		el.Inner = doc[innerStart:closeStart]
		el.Complete = true
		out = append(out, el)
		pos = closeEnd
	}
}

// firstElement returns the first <name> region, if any.
func firstElement(doc, name string) (element, bool) {
	els := findElements(doc, name)
	if len(els) == 0 {
		return element{}, false
	}
	return els[0], true
}

// stripElements removes every <name> region, leaving the rest of doc.
// Used to read an element's own children without its descendants'.
func stripElements(doc, name string) string {
	var b strings.Builder
	pos := 0
	for {
		start := indexTag(doc, "<"+name, pos)
		if start < 0 {
			b.WriteString(doc[pos:])
			return b.String()
		}
		b.WriteString(doc[pos:start])

		openEnd := tagEnd(doc, start)
		if openEnd < 0 {
			return b.String()
		}
		if strings.HasSuffix(strings.TrimSpace(doc[start:openEnd]), "/") {
			pos = openEnd + 1
			continue
		}
		_, closeEnd := matchClose(doc, name, openEnd+1)
		if closeEnd < 0 {
			return b.String()
		}
		pos = closeEnd
	}
}

// indexTag finds "<name" at or after from, followed by a tag boundary so
// that "<Representation" does not match "<RepresentationIndex".
func indexTag(doc, open string, from int) int {
	for from <= len(doc) {
		i := strings.Index(doc[from:], open)
		if i < 0 {
			return -1
		}
		i += from
		next := i + len(open)
		if next >= len(doc) || isTagBoundary(doc[next]) {
			return i
		}
		from = next
	}
	return -1
}

func isTagBoundary(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '>', '/':
		return true
	}
	return false
}

// tagEnd returns the index of the '>' closing the tag that starts at
// start, skipping '>' inside quoted attribute values.
func tagEnd(doc string, start int) int {
	var quote byte
	for i := start + 1; i < len(doc); i++ {
		c := doc[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

// matchClose finds the </name> balancing an element whose content starts
// at from. Returns -1, -1 if the document ends first.
func matchClose(doc, name string, from int) (int, int) {
	open, closing := "<"+name, "</"+name
	depth := 1
	pos := from
	for {
		nextOpen := indexTag(doc, open, pos)
		nextClose := indexTag(doc, closing, pos)
		if nextClose < 0 {
			return -1, -1
		}
		if nextOpen >= 0 && nextOpen < nextClose {
			end := tagEnd(doc, nextOpen)
			if end < 0 {
				return -1, -1
			}
			if !strings.HasSuffix(strings.TrimSpace(doc[nextOpen:end]), "/") {
				depth++
			}
			pos = end + 1
			continue
		}
		end := tagEnd(doc, nextClose)
		if end < 0 {
			return -1, -1
		}
		depth--
		if depth == 0 {
			return nextClose, end + 1
		}
		pos = end + 1
	}
}
