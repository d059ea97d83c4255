// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
)

const streamHeader = `<?xml version='1.0'?><stream:stream xmlns:stream='http://etherx.jabber.org/streams' version='1.0' xmlns='jabber:client'>`

func newStream(t *testing.T) *codec.Codec {
	t.Helper()
	c := codec.New()
	pkts, err := c.Decode([]byte(streamHeader))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.IsType(t, codec.StreamStart{}, pkts[0])
	return c
}

func TestStreamStart(t *testing.T) {
	c := codec.New()
	pkts, err := c.Decode([]byte(`<?xml version='1.0'?><stream:stream xmlns:stream='http://etherx.jabber.org/streams' xmlns='jabber:client'>`))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	start, ok := pkts[0].(codec.StreamStart)
	require.True(t, ok, "expected StreamStart, got %T", pkts[0])
	assert.Equal(t, []element.Attr{
		{Name: "xmlns:stream", Value: "http://etherx.jabber.org/streams"},
		{Name: "xmlns", Value: "jabber:client"},
	}, start.Attrs)
	assert.Equal(t, "jabber:client", start.Attr("xmlns"))
	assert.Equal(t, 1, c.Depth())
}

func TestStanza(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte(`<message xmlns='jabber:client'><body>hi</body></message>`))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	stanza, ok := pkts[0].(codec.Stanza)
	require.True(t, ok, "expected Stanza, got %T", pkts[0])
	assert.Equal(t, "message", stanza.Name())
	assert.Equal(t, "jabber:client", stanza.Namespace())
	children := stanza.Children()
	require.Len(t, children, 1)
	assert.Equal(t, "body", children[0].Name())
	assert.Equal(t, "hi", children[0].Text())
}

func TestStreamEnd(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte(`</stream:stream>`))
	require.NoError(t, err)
	assert.Equal(t, []codec.Packet{codec.StreamEnd{}}, pkts)
	assert.Equal(t, 0, c.Depth())
}

func TestElementAtEmptyStackIsStreamRoot(t *testing.T) {
	got := decodeAll(t, []byte(`<message xmlns='jabber:client'><body>hi</body></message>`))
	assert.Equal(t, []string{
		"start [{xmlns jabber:client}]",
		`stanza <body xmlns="jabber:client">hi</body>`,
		"end",
	}, got)
}

func TestDefaultNamespaceInherited(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte(`<stream:features><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/></stream:features>`))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	features := pkts[0].(codec.Stanza)
	assert.True(t, features.Is("features", "http://etherx.jabber.org/streams"))
	assert.NotNil(t, features.Child("bind", "urn:ietf:params:xml:ns:xmpp-bind"))

	pkts, err = c.Decode([]byte(`<presence/>`))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.True(t, pkts[0].(codec.Stanza).Is("presence", "jabber:client"))
}

func TestTruncatedStanza(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte("<test>ß</test"))
	require.NoError(t, err)
	assert.Empty(t, pkts)

	pkts, err = c.Decode([]byte(">"))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	el := pkts[0].(codec.Stanza)
	assert.Equal(t, "test", el.Name())
	assert.Equal(t, "ß", el.Text())
}

func TestTruncatedUTF8(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte("<test>\xc3"))
	require.NoError(t, err)
	assert.Empty(t, pkts)
	assert.Equal(t, 1, c.Buffered())

	pkts, err = c.Decode([]byte("\x9f</test>"))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	el := pkts[0].(codec.Stanza)
	assert.Equal(t, "test", el.Name())
	assert.Equal(t, "ß", el.Text())
}

func TestAttributePrefix(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte(`<status xml:lang='en'>Test status</status>`))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	el := pkts[0].(codec.Stanza)
	assert.Equal(t, "status", el.Name())
	assert.Equal(t, "Test status", el.Text())
	assert.Equal(t, "en", el.Attr("xml:lang"))
}

func TestCutOutStanza(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte(`<message `))
	require.NoError(t, err)
	assert.Empty(t, pkts)
	pkts, err = c.Decode([]byte(`type='chat'><body>Foo</body></message>`))
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, "chat", pkts[0].(codec.Stanza).Attr("type"))
}

func TestWhitespaceKeepalive(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte(" "))
	require.NoError(t, err)
	assert.Empty(t, pkts, "trailing text may continue in the next chunk")

	pkts, err = c.Decode([]byte("<presence/>"))
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	assert.Equal(t, codec.Text(" "), pkts[0])
	assert.IsType(t, codec.Stanza{}, pkts[1])
}

func TestDecodeEOF(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte("\n"))
	require.NoError(t, err)
	assert.Empty(t, pkts)
	pkts, err = c.DecodeEOF()
	require.NoError(t, err)
	assert.Equal(t, []codec.Packet{codec.Text("\n"), codec.StreamEnd{}}, pkts)

	c = newStream(t)
	_, err = c.Decode([]byte("<message><bo"))
	require.NoError(t, err)
	_, err = c.DecodeEOF()
	assert.True(t, errors.Is(err, &codec.ParserError{Kind: codec.Parse}), "unexpected error %v", err)
}

var errorTests = [...]struct {
	in   string
	kind codec.ParserErrorKind
}{
	0: {in: "<>", kind: codec.ShortTag},
	1: {in: "<a></>", kind: codec.ShortTag},
	2: {in: "<a>\xff\xfe\xfd\xfc\xfb</a>", kind: codec.Utf8},
	3: {in: "<a></b>", kind: codec.Parse},
	4: {in: "<p:a/>", kind: codec.Parse},
	5: {in: "<a b='c' b>", kind: codec.Parse},
	6: {in: "<a>&nbsp;</a>", kind: codec.Parse},
}

func TestDecodeErrors(t *testing.T) {
	for i, tc := range errorTests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			c := newStream(t)
			_, err := c.Decode([]byte(tc.in))
			var perr *codec.ParserError
			require.True(t, errors.As(err, &perr), "expected parser error, got %v", err)
			assert.Equal(t, tc.kind, perr.Kind)
		})
	}
}

func TestPacketsBeforeErrorAreReturned(t *testing.T) {
	c := newStream(t)
	pkts, err := c.Decode([]byte("<presence/><></>"))
	assert.Error(t, err)
	require.Len(t, pkts, 1)
	assert.IsType(t, codec.Stanza{}, pkts[0])
}

const splitInput = streamHeader +
	"\n<message type='chat' to='juliet@example.com' xml:lang='en'><body>Wherefore art thou, Romeo? ß€𝄞 &amp; &lt;3</body>" +
	"<x xmlns='urn:example'><y a='&apos;&quot;'/><![CDATA[<raw>]]></x></message>" +
	"<!-- comment --> <iq type='result' id='1'/></stream:stream>"

func decodeAll(t *testing.T, chunks ...[]byte) []string {
	t.Helper()
	c := codec.New()
	var pkts []codec.Packet
	for _, chunk := range chunks {
		p, err := c.Decode(chunk)
		require.NoError(t, err)
		pkts = append(pkts, p...)
	}
	p, err := c.DecodeEOF()
	require.NoError(t, err)
	pkts = append(pkts, p...)
	return describe(pkts)
}

func describe(pkts []codec.Packet) []string {
	out := make([]string, 0, len(pkts))
	for _, p := range pkts {
		switch p := p.(type) {
		case codec.StreamStart:
			out = append(out, fmt.Sprintf("start %v", p.Attrs))
		case codec.Stanza:
			out = append(out, "stanza "+p.String())
		case codec.Text:
			out = append(out, fmt.Sprintf("text %q", string(p)))
		case codec.StreamEnd:
			out = append(out, "end")
		}
	}
	return out
}

func TestChunkSplitIdempotence(t *testing.T) {
	input := []byte(splitInput)
	want := decodeAll(t, input)
	require.NotEmpty(t, want)
	for i := 0; i <= len(input); i++ {
		got := decodeAll(t, input[:i], input[i:])
		require.Equal(t, want, got, "split at offset %d", i)
	}
}

func TestByteAtATime(t *testing.T) {
	input := []byte(splitInput)
	want := decodeAll(t, input)
	chunks := make([][]byte, len(input))
	for i := range input {
		chunks[i] = input[i : i+1]
	}
	assert.Equal(t, want, decodeAll(t, chunks...))
}

func TestUTF8Boundary(t *testing.T) {
	for _, r := range []string{"ß", "€", "𝄞"} {
		stanza := "<message><body>" + strings.Repeat("a", 10) + r + "</body></message>"
		whole := []byte(stanza)
		end := strings.Index(stanza, r) + len(r)
		for cut := 1; cut < len(r) && cut <= 2; cut++ {
			t.Run(fmt.Sprintf("%s/%d", r, cut), func(t *testing.T) {
				c := newStream(t)
				pkts, err := c.Decode(whole[:end-cut])
				require.NoError(t, err)
				assert.Empty(t, pkts)
				pkts, err = c.Decode(whole[end-cut:])
				require.NoError(t, err)
				require.Len(t, pkts, 1)
				body := pkts[0].(codec.Stanza).Child("body", "jabber:client")
				require.NotNil(t, body)
				assert.Equal(t, strings.Repeat("a", 10)+r, body.Text())
			})
		}
	}
}

func TestRoundTrip(t *testing.T) {
	trees := []string{
		`<message xmlns='jabber:client' type='chat' to='a@b/c'><body>hi &amp; bye</body><thread>t</thread></message>`,
		`<iq xmlns='jabber:client' type='set' id='x'><query xmlns='jabber:iq:roster'><item jid='a@b' name='&apos;A&quot;'/></query></iq>`,
		`<presence xmlns='jabber:client' xml:lang='en'><status>away</status><x xmlns='urn:x'><y xmlns='urn:y'>z</y></x></presence>`,
		`<features xmlns='http://etherx.jabber.org/streams'><mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'><mechanism>PLAIN</mechanism></mechanisms></features>`,
	}
	for i, tree := range trees {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			want := element.MustParse(tree)
			c := newStream(t)
			b, err := c.Encode(nil, codec.Stanza{Element: want})
			require.NoError(t, err)
			pkts, err := c.Decode(b)
			require.NoError(t, err)
			require.Len(t, pkts, 1)
			got := pkts[0].(codec.Stanza).Element
			assert.True(t, want.Equal(got), "want=%s, got=%s", want, got)
		})
	}
}

func TestEncodeStream(t *testing.T) {
	c := codec.New()
	b, err := c.Encode(nil, codec.StreamStart{Attrs: []element.Attr{
		{Name: "to", Value: "example.net"},
		{Name: "version", Value: "1.0"},
		{Name: "xmlns", Value: "jabber:client"},
		{Name: "xmlns:stream", Value: "http://etherx.jabber.org/streams"},
	}})
	require.NoError(t, err)
	b, err = c.Encode(b, codec.Text("<'&'>"))
	require.NoError(t, err)
	b, err = c.Encode(b, codec.StreamEnd{})
	require.NoError(t, err)
	assert.Equal(t, `<stream:stream to="example.net" version="1.0" xmlns="jabber:client" xmlns:stream="http://etherx.jabber.org/streams">&lt;&apos;&amp;&apos;&gt;</stream:stream>`, string(b))

	_, err = c.Encode(nil, codec.Stanza{})
	assert.Equal(t, codec.ErrNilStanza, err)
}

func TestEncodeLargeStanza(t *testing.T) {
	text := strings.Repeat("A", 1<<15)
	msg := element.New("message", "jabber:client")
	msg.AppendChild(element.New("body", "jabber:client")).AppendText(text)

	b, err := codec.New().Encode(make([]byte, 0, 8), codec.Stanza{Element: msg})
	require.NoError(t, err)
	assert.Equal(t, `<message xmlns="jabber:client"><body>`+text+`</body></message>`, string(b))
	assert.GreaterOrEqual(t, cap(b), codec.MaxStanzaSize)
}
