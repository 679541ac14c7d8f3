package exec

import (
	"bytes"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// PrefixWriter writes each complete line to the underlying writer with a
// styled prefix. A trailing partial line is held until Flush.
type PrefixWriter struct {
	prefix string
	style  lipgloss.Style
	writer io.Writer
	buffer []byte
}

// NewPrefixWriter creates a writer that prefixes each line.
func NewPrefixWriter(writer io.Writer, prefix string, color lipgloss.Color) *PrefixWriter {
	return &PrefixWriter{
		prefix: prefix,
		style:  lipgloss.NewStyle().Foreground(color),
		writer: writer,
	}
}

// Write adds prefix to each complete line
func (p *PrefixWriter) Write(data []byte) (int, error) {
	p.buffer = append(p.buffer, data...)

	for {
		i := bytes.IndexByte(p.buffer, '\n')
		if i < 0 {
			break
		}
		if err := p.writeLine(p.buffer[:i]); err != nil {
			return 0, err
		}
		p.buffer = p.buffer[i+1:]
	}
	return len(data), nil
}

// Flush writes any remaining buffered content
func (p *PrefixWriter) Flush() error {
	if len(p.buffer) == 0 {
		return nil
	}
	err := p.writeLine(p.buffer)
	p.buffer = p.buffer[:0]
	return err
}

func (p *PrefixWriter) writeLine(line []byte) error {
	_, err := io.WriteString(p.writer, p.style.Render(p.prefix+string(line))+"\n")
	return err
}
