// Package markup indexes an HTML document by byte offset so callers can
// rewrite individual tags while every other byte stays as the origin sent it.
package markup

import (
	"html"
	"sort"
	"strings"

	nethtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr is a decoded attribute. Keys are lower-case.
type Attr struct {
	Key string
	Val string
}

// Element is a start tag found in the document.
//
// Start/End delimit the start tag itself. When a matching end tag exists,
// InnerStart/InnerEnd delimit the content and CloseEnd is the offset just
// past the end tag; otherwise InnerEnd and CloseEnd are -1.
type Element struct {
	Tag         string
	Attrs       []Attr
	SelfClosing bool

	Start, End int
	InnerStart  int
	InnerEnd    int
	CloseEnd    int
}

// Attr returns the first value of key.
func (e *Element) Attr(key string) (string, bool) {
	key = strings.ToLower(key)
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrCount reports how many times key occurs on the tag.
func (e *Element) AttrCount(key string) int {
	key = strings.ToLower(key)
	n := 0
	for _, a := range e.Attrs {
		if a.Key == key {
			n++
		}
	}
	return n
}

// Closed reports whether a matching end tag was found.
func (e *Element) Closed() bool {
	return e.InnerEnd >= 0
}

// OuterEnd is the offset just past the element, end tag included if any.
func (e *Element) OuterEnd() int {
	if e.CloseEnd >= 0 {
		return e.CloseEnd
	}
	return e.End
}

var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Track: true,
	atom.Wbr: true,
}

// Document is an HTML string plus an element index over it. Any edit
// re-indexes, so Elements obtained before an edit must not be reused.
type Document struct {
	src      string
	elements []*Element
}

// Parse indexes src. It never fails: unbalanced or broken markup simply
// yields elements without a matching end tag.
func Parse(src string) *Document {
	d := &Document{src: src}
	d.index()
	return d
}

func (d *Document) String() string {
	return d.src
}

// Reset replaces the document with src and re-indexes.
func (d *Document) Reset(src string) {
	d.src = src
	d.index()
}

// Contains reports whether inner lies within the span of outer.
func Contains(outer, inner *Element) bool {
	return inner.Start >= outer.End && inner.Start < outer.OuterEnd()
}

func (d *Document) index() {
	d.elements = d.elements[:0]
	var open []*Element
	d.scan(d.src, 0, &open)
}

// scan tokenizes src, whose first byte sits at base in the document. The
// tokenizer reads <noscript> content as raw text; that text is scanned
// again so fallback markup such as <img> gets indexed too.
func (d *Document) scan(src string, base int, open *[]*Element) {
	z := nethtml.NewTokenizer(strings.NewReader(src))
	offset := base
	inNoscript := false

	for {
		tt := z.Next()
		if tt == nethtml.ErrorToken {
			// io.EOF or a tokenizer error; either way the index is complete.
			return
		}
		raw := z.Raw()
		width := len(raw)
		start := offset
		offset += width

		wasNoscript := inNoscript
		inNoscript = false

		switch tt {
		case nethtml.TextToken:
			if wasNoscript {
				d.scan(string(raw), start, open)
			}
		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			tok := z.Token()
			el := &Element{
				Tag:         tok.Data,
				SelfClosing: tt == nethtml.SelfClosingTagToken,
				Start:       start,
				End:         offset,
				InnerStart:  offset,
				InnerEnd:    -1,
				CloseEnd:    -1,
			}
			for _, a := range tok.Attr {
				el.Attrs = append(el.Attrs, Attr{Key: a.Key, Val: a.Val})
			}
			d.elements = append(d.elements, el)
			if !el.SelfClosing && !voidElements[tok.DataAtom] {
				*open = append(*open, el)
			}
			inNoscript = tok.DataAtom == atom.Noscript
		case nethtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			stack := *open
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].Tag == tag {
					stack[i].InnerEnd = start
					stack[i].CloseEnd = offset
					*open = stack[:i]
					break
				}
			}
		}
	}
}

// Elements returns every element named tag in document order.
func (d *Document) Elements(tag string) []*Element {
	tag = strings.ToLower(tag)
	var out []*Element
	for _, e := range d.elements {
		if e.Tag == tag {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the elements named tag that satisfy match.
func (d *Document) Find(tag string, match func(*Element) bool) []*Element {
	var out []*Element
	for _, e := range d.Elements(tag) {
		if match == nil || match(e) {
			out = append(out, e)
		}
	}
	return out
}

// First returns the first element named tag, or nil.
func (d *Document) First(tag string) *Element {
	tag = strings.ToLower(tag)
	for _, e := range d.elements {
		if e.Tag == tag {
			return e
		}
	}
	return nil
}

// LastClosing returns the offset of the last end tag named tag, or -1.
// The last one wins because templates sometimes emit stray closers early.
func (d *Document) LastClosing(tag string) int {
	tag = strings.ToLower(tag)
	pos := -1
	for _, e := range d.elements {
		if e.Tag == tag && e.Closed() && e.InnerEnd > pos {
			pos = e.InnerEnd
		}
	}
	return pos
}

// Inner returns the raw content between the element's tags.
func (d *Document) Inner(e *Element) string {
	if !e.Closed() {
		return ""
	}
	return d.src[e.InnerStart:e.InnerEnd]
}

// Outer returns the raw markup of the whole element.
func (d *Document) Outer(e *Element) string {
	return d.src[e.Start:e.OuterEnd()]
}

// Text returns the decoded text content of the element with tags removed.
func (d *Document) Text(e *Element) string {
	return TextOf(d.Inner(e))
}

// TextOf decodes the text content of a markup fragment.
func TextOf(fragment string) string {
	z := nethtml.NewTokenizer(strings.NewReader(fragment))
	var sb strings.Builder
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return sb.String()
		case nethtml.TextToken:
			sb.Write(z.Text())
		}
	}
}

// Edit replaces src[Start:End] with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Insert is an Edit that adds text at pos.
func Insert(pos int, text string) Edit {
	return Edit{Start: pos, End: pos, Text: text}
}

// Apply performs edits computed against the current index and re-indexes
// once. Overlapping edits are dropped, keeping the earliest.
func (d *Document) Apply(edits ...Edit) {
	if len(edits) == 0 {
		return
	}
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var sb strings.Builder
	sb.Grow(len(d.src))
	cursor := 0
	for _, ed := range sorted {
		if ed.Start < cursor || ed.End < ed.Start || ed.End > len(d.src) {
			continue
		}
		sb.WriteString(d.src[cursor:ed.Start])
		sb.WriteString(ed.Text)
		cursor = ed.End
	}
	sb.WriteString(d.src[cursor:])

	d.src = sb.String()
	d.index()
}

// SetAttr returns an edit rewriting e's start tag with key=val. Every
// existing occurrence of key is dropped and a single one takes the place
// of the first.
func (e *Element) SetAttr(key, val string) Edit {
	key = strings.ToLower(key)
	attrs := make([]Attr, 0, len(e.Attrs)+1)
	replaced := false
	for _, a := range e.Attrs {
		if a.Key != key {
			attrs = append(attrs, a)
			continue
		}
		if !replaced {
			attrs = append(attrs, Attr{Key: key, Val: val})
			replaced = true
		}
	}
	if !replaced {
		attrs = append(attrs, Attr{Key: key, Val: val})
	}
	return e.rewrite(attrs)
}

// RemoveAttr returns an edit dropping every occurrence of key.
func (e *Element) RemoveAttr(key string) Edit {
	key = strings.ToLower(key)
	attrs := make([]Attr, 0, len(e.Attrs))
	for _, a := range e.Attrs {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	return e.rewrite(attrs)
}

// WithAttrs returns an edit replacing the whole attribute list.
func (e *Element) WithAttrs(attrs []Attr) Edit {
	return e.rewrite(attrs)
}

// SetInner returns an edit replacing the element's content. The element
// must be closed.
func (e *Element) SetInner(content string) Edit {
	return Edit{Start: e.InnerStart, End: e.InnerEnd, Text: content}
}

// Remove returns an edit deleting the element, end tag included.
func (e *Element) Remove() Edit {
	return Edit{Start: e.Start, End: e.OuterEnd()}
}

func (e *Element) rewrite(attrs []Attr) Edit {
	return Edit{Start: e.Start, End: e.End, Text: StartTag(e.Tag, attrs, e.SelfClosing)}
}

// StartTag renders a start tag. Empty values render as bare attributes.
func StartTag(tag string, attrs []Attr, selfClosing bool) string {
	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(tag)
	for _, a := range attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		if a.Val != "" {
			sb.WriteString(`="`)
			sb.WriteString(html.EscapeString(a.Val))
			sb.WriteByte('"')
		}
	}
	if selfClosing {
		sb.WriteString(" /")
	}
	sb.WriteByte('>')
	return sb.String()
}
