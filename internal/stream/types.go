package stream

import "context"

// Chunk represents a processed piece of content from the input
type Chunk struct {
	Content string
	Error   error
}

// Framing selects how the input byte stream is split into text.
type Framing int

const (
	// FramingRaw passes text through as it is read.
	FramingRaw Framing = iota
	// FramingSSE decodes chat completion server-sent events.
	FramingSSE
)

// ParseFraming maps a flag value to a Framing.
func ParseFraming(s string) (Framing, bool) {
	switch s {
	case "", "raw":
		return FramingRaw, true
	case "sse":
		return FramingSSE, true
	}
	return FramingRaw, false
}

// Parser handles the processing of an input stream into chunks
type Parser struct {
	ctx     context.Context
	framing Framing
	chunks  chan Chunk
}

func NewParser(ctx context.Context, framing Framing) *Parser {
	return &Parser{
		ctx:     ctx,
		framing: framing,
		chunks:  make(chan Chunk),
	}
}

// Chunks must be drained until closed.
func (p *Parser) Chunks() <-chan Chunk {
	return p.chunks
}
