package document

import (
	"bufio"
	"io"
	"strings"
)

// TextLoader handles plain text files. Each blank-line-separated
// paragraph becomes a block.
type TextLoader struct{}

func (p *TextLoader) Load(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []Block
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			blocks = append(blocks, Block{Kind: BlockParagraph, Text: current.String()})
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Document{Pages: layoutBlocks(blocks)}, nil
}
