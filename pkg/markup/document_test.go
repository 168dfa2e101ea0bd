package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `<!DOCTYPE html>
<html lang="en">
<head>
  <META Name="Description" content="old">
  <title>Hello &amp; welcome</title>
  <link rel="canonical" href="https://example.com/a"/>
</head>
<body class="x">
  <h1>  Old heading </h1>
  <!-- <h1>commented</h1> -->
  <p>Some <b>bold</b> text<br></p>
  <img src="a.png" alt="one" ALT="two">
  <script>var s = "<h1>not a heading</h1>";</script>
</body>
</html>`

func TestParseIndexesElements(t *testing.T) {
	d := Parse(sample)

	head := d.First("head")
	require.NotNil(t, head)
	assert.True(t, head.Closed())
	assert.Equal(t, "<head>", sample[head.Start:head.End])

	meta := d.First("meta")
	require.NotNil(t, meta)
	name, ok := meta.Attr("NAME")
	assert.True(t, ok)
	assert.Equal(t, "Description", name)
	assert.False(t, meta.Closed(), "void elements have no content")

	title := d.First("title")
	require.NotNil(t, title)
	assert.Equal(t, "Hello &amp; welcome", d.Inner(title))
	assert.Equal(t, "Hello & welcome", d.Text(title))

	link := d.First("link")
	require.NotNil(t, link)
	assert.True(t, link.SelfClosing)

	headings := d.Elements("h1")
	require.Len(t, headings, 1, "comments and script bodies are not markup")
	assert.Equal(t, "  Old heading ", d.Text(headings[0]))

	p := d.First("p")
	assert.Equal(t, "Some bold text", d.Text(p))

	img := d.First("img")
	assert.Equal(t, 2, img.AttrCount("alt"))
}

func TestParseIndexesNoscriptContent(t *testing.T) {
	src := `<body><noscript><img src="pixel.gif"><p>Enable <b>JS</b></p></noscript><img src="after.png"></body>`
	d := Parse(src)

	imgs := d.Elements("img")
	require.Len(t, imgs, 2)
	assert.Equal(t, `<img src="pixel.gif">`, src[imgs[0].Start:imgs[0].End])
	assert.Equal(t, `<img src="after.png">`, src[imgs[1].Start:imgs[1].End])

	noscript := d.First("noscript")
	require.NotNil(t, noscript)
	assert.True(t, noscript.Closed())
	assert.True(t, Contains(noscript, imgs[0]))
	assert.False(t, Contains(noscript, imgs[1]))

	p := d.First("p")
	require.NotNil(t, p)
	assert.Equal(t, "Enable JS", d.Text(p))

	d.Apply(imgs[0].SetAttr("alt", "Tracking pixel"))
	assert.Contains(t, d.String(), `<noscript><img src="pixel.gif" alt="Tracking pixel"><p>`)
	require.Len(t, d.Elements("img"), 2)
}

func TestParseUnclosedElements(t *testing.T) {
	d := Parse(`<html><head><title>x</title><body><div><p>one<p>two</div>`)

	div := d.First("div")
	require.NotNil(t, div)
	assert.True(t, div.Closed())
	assert.Equal(t, "<p>one<p>two", d.Inner(div))

	for _, p := range d.Elements("p") {
		assert.False(t, p.Closed())
	}
	assert.False(t, d.First("body").Closed())
	assert.Equal(t, -1, d.LastClosing("body"))
}

func TestApplyKeepsUntouchedBytes(t *testing.T) {
	d := Parse(sample)
	title := d.First("title")
	h1 := d.First("h1")

	d.Apply(
		h1.SetInner("New heading"),
		title.SetInner("Changed"),
	)

	out := d.String()
	assert.Contains(t, out, "<title>Changed</title>")
	assert.Contains(t, out, "<h1>New heading</h1>")
	assert.Contains(t, out, `<META Name="Description" content="old">`, "unrelated tags keep their spelling")
	assert.Contains(t, out, "<!-- <h1>commented</h1> -->")

	// The index is rebuilt after edits.
	assert.Equal(t, "Changed", d.Text(d.First("title")))
}

func TestApplyDropsOverlappingEdits(t *testing.T) {
	d := Parse(`<p>abc</p>`)
	p := d.First("p")
	d.Apply(p.SetInner("first"), Edit{Start: p.InnerStart + 1, End: p.InnerEnd, Text: "second"})
	assert.Equal(t, `<p>first</p>`, d.String())
}

func TestSetAttr(t *testing.T) {
	tests := []struct {
		name string
		in   string
		key  string
		val  string
		want string
	}{
		{
			name: "replace existing",
			in:   `<img src="a.png" alt="x">`,
			key:  "alt", val: "A logo",
			want: `<img src="a.png" alt="A logo">`,
		},
		{
			name: "collapse duplicates",
			in:   `<img alt="one" src="a.png" ALT="two">`,
			key:  "alt", val: "A logo",
			want: `<img alt="A logo" src="a.png">`,
		},
		{
			name: "append and keep self closing",
			in:   `<link rel="canonical"/>`,
			key:  "href", val: "https://example.com/",
			want: `<link rel="canonical" href="https://example.com/" />`,
		},
		{
			name: "escape value",
			in:   `<meta name="description">`,
			key:  "content", val: `Fish & "chips"`,
			want: `<meta name="description" content="Fish &amp; &#34;chips&#34;">`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Parse(tt.in)
			el := d.elements[0]
			d.Apply(el.SetAttr(tt.key, tt.val))
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestRemoveAttrAndElement(t *testing.T) {
	d := Parse(`<head data-x="1" id="h"><title>a</title><title>b</title></head>`)
	head := d.First("head")
	second := d.Elements("title")[1]
	d.Apply(head.RemoveAttr("data-x"), second.Remove())
	assert.Equal(t, `<head id="h"><title>a</title></head>`, d.String())
}

func TestInsertAndLastClosing(t *testing.T) {
	d := Parse(`<html><body><p>x</p></body></html>`)
	pos := d.LastClosing("body")
	require.Greater(t, pos, 0)
	d.Apply(Insert(pos, "<footer/>"))
	assert.Equal(t, `<html><body><p>x</p><footer/></body></html>`, d.String())
}
