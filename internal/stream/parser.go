package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// ChatResponse represents the structure of a streamed chat completion event.
type ChatResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Process reads body until EOF or until the parser's context is done,
// emitting chunks on Chunks. The channel is closed on return.
func (p *Parser) Process(body io.ReadCloser) {
	defer close(p.chunks)
	defer body.Close()

	switch p.framing {
	case FramingSSE:
		p.processEvents(body)
	default:
		p.processRaw(body)
	}
}

func (p *Parser) send(c Chunk) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.chunks <- c:
		return true
	}
}

// fail reports err; consumers drain Chunks until it is closed.
func (p *Parser) fail(err error) {
	p.chunks <- Chunk{Error: err}
}

func (p *Parser) processRaw(body io.Reader) {
	reader := bufio.NewReaderSize(body, 4096)
	buf := make([]byte, 4096)
	var pending []byte

	for {
		if err := p.ctx.Err(); err != nil {
			p.fail(err)
			return
		}

		n, err := reader.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete := completeUTF8(pending)
			if complete > 0 {
				if !p.send(Chunk{Content: string(pending[:complete])}) {
					p.fail(p.ctx.Err())
					return
				}
				pending = append(pending[:0], pending[complete:]...)
			}
		}
		if errors.Is(err, io.EOF) {
			if len(pending) > 0 {
				p.send(Chunk{Content: string(pending)})
			}
			return
		}
		if err != nil {
			p.send(Chunk{Error: err})
			return
		}
	}
}

// completeUTF8 returns the length of the longest prefix of b that does not
// end inside a multi-byte sequence.
func completeUTF8(b []byte) int {
	end := len(b)
	// A rune is at most utf8.UTFMax bytes, so only the tail needs checking.
	for i := end - 1; i >= 0 && i >= end-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:end]) {
			return end
		}
		return i
	}
	return end
}

func (p *Parser) processEvents(body io.Reader) {
	done := p.ctx.Done()

	reader := bufio.NewReaderSize(body, 4096)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanLines)

	for {
		select {
		case <-done:
			p.fail(p.ctx.Err())
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil {
					p.send(Chunk{Error: err})
				}
				return
			}

			line := scanner.Text()
			if line == "" || line == "data: [DONE]" || !strings.HasPrefix(line, "data:") {
				continue
			}

			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			var chunk ChatResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				if !p.send(Chunk{Error: err}) {
					return
				}
				continue
			}

			if len(chunk.Choices) > 0 {
				content := chunk.Choices[0].Delta.Content
				if content == "" {
					content = chunk.Choices[0].Message.Content
				}
				if content != "" && !p.send(Chunk{Content: content}) {
					p.fail(p.ctx.Err())
					return
				}
			}
		}
	}
}
