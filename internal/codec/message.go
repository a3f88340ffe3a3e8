package codec

import "encoding/binary"

// Builder assembles an outbound message payload (tag byte + typed fields)
// per the %1/%2/%4/%@ format grammar the board protocol uses for outbound
// messages. Every multi-byte field is big-endian.
type Builder struct {
	buf []byte
}

// NewBuilder starts a message with its one-byte ASCII tag.
func NewBuilder(tag byte) *Builder {
	return &Builder{buf: []byte{tag}}
}

// U8 appends a %1 field.
func (b *Builder) U8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// U16 appends a %2 unsigned field.
func (b *Builder) U16(v uint16) *Builder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// I16 appends a %2 signed field.
func (b *Builder) I16(v int16) *Builder {
	return b.U16(uint16(v))
}

// U32 appends a %4 field.
func (b *Builder) U32(v uint32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// Array16 appends a %@ field: one length byte (element count) followed by
// that many big-endian signed 16-bit values.
func (b *Builder) Array16(v []int16) *Builder {
	b.buf = append(b.buf, uint8(len(v)))
	for _, e := range v {
		b.U16(uint16(e))
	}
	return b
}

// Bytes returns the assembled payload (not yet framed).
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Parser walks a decoded payload per the same format grammar, used both for
// outbound round-trip tests and for the fixed-format inbound tags.
type Parser struct {
	buf []byte
	pos int
}

// NewParser wraps a decoded (unframed) payload for sequential field reads.
func NewParser(payload []byte) *Parser {
	return &Parser{buf: payload}
}

// Len reports how many bytes remain unread.
func (p *Parser) Len() int { return len(p.buf) - p.pos }

// Tag returns the first payload byte without advancing (the message tag).
func (p *Parser) Tag() byte {
	if len(p.buf) == 0 {
		return 0
	}
	return p.buf[0]
}

// Skip advances past the tag byte, positioning the cursor at the first
// tag-specific field.
func (p *Parser) Skip() *Parser {
	if p.pos == 0 && len(p.buf) > 0 {
		p.pos = 1
	}
	return p
}

func (p *Parser) U8() uint8 {
	if p.pos >= len(p.buf) {
		return 0
	}
	v := p.buf[p.pos]
	p.pos++
	return v
}

func (p *Parser) U16() uint16 {
	if p.pos+2 > len(p.buf) {
		p.pos = len(p.buf)
		return 0
	}
	v := binary.BigEndian.Uint16(p.buf[p.pos : p.pos+2])
	p.pos += 2
	return v
}

func (p *Parser) I16() int16 { return int16(p.U16()) }

func (p *Parser) U32() uint32 {
	if p.pos+4 > len(p.buf) {
		p.pos = len(p.buf)
		return 0
	}
	v := binary.BigEndian.Uint32(p.buf[p.pos : p.pos+4])
	p.pos += 4
	return v
}

func (p *Parser) Array16() []int16 {
	n := int(p.U8())
	out := make([]int16, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, p.I16())
	}
	return out
}

// Rest returns the unread remainder as raw bytes (used for the identity
// string tag, whose payload is free-form text).
func (p *Parser) Rest() []byte {
	out := p.buf[p.pos:]
	p.pos = len(p.buf)
	return out
}
