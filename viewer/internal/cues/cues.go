package cues

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/focustrack/focustrack/pkg/types"
)

// Cue is one subtitle entry.
type Cue struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// Range returns the cue bounds.
func (c Cue) Range() types.Range { return types.Range{Start: c.Start, End: c.End} }

// Ranges returns the bounds of every cue, in order.
func Ranges(cs []Cue) []types.Range {
	out := make([]types.Range, len(cs))
	for i, c := range cs {
		out[i] = c.Range()
	}
	return out
}

const arrow = "-->"

// Parse reads a WebVTT or SRT document. Header, NOTE, STYLE and REGION
// blocks are skipped; cue identifiers and settings are ignored.
func Parse(r io.Reader) ([]Cue, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		out    []Cue
		block  []string
		lineNo int
		first  = true
	)
	flush := func(endLine int) error {
		defer func() { block = block[:0] }()
		if len(block) == 0 {
			return nil
		}
		c, ok, err := parseBlock(block)
		if err != nil {
			return fmt.Errorf("cues: block ending at line %d: %w", endLine, err)
		}
		if ok {
			out = append(out, c)
		}
		return nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(lineNo - 1); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("cues: read: %w", err)
	}
	if err := flush(lineNo); err != nil {
		return nil, err
	}
	return out, nil
}

// parseBlock returns ok == false for blocks that carry no cue.
func parseBlock(lines []string) (Cue, bool, error) {
	head := lines[0]
	if strings.HasPrefix(head, "WEBVTT") || strings.HasPrefix(head, "NOTE") ||
		strings.HasPrefix(head, "STYLE") || strings.HasPrefix(head, "REGION") {
		return Cue{}, false, nil
	}

	timing := -1
	for i, l := range lines {
		if strings.Contains(l, arrow) {
			timing = i
			break
		}
		if i >= 1 {
			break // identifier line is followed by the timing line
		}
	}
	if timing < 0 {
		return Cue{}, false, fmt.Errorf("missing %q timing line", arrow)
	}

	from, to, _ := strings.Cut(lines[timing], arrow)
	start, err := ParseTimestamp(strings.TrimSpace(from))
	if err != nil {
		return Cue{}, false, err
	}
	fields := strings.Fields(to)
	if len(fields) == 0 {
		return Cue{}, false, fmt.Errorf("missing end timestamp")
	}
	end, err := ParseTimestamp(fields[0])
	if err != nil {
		return Cue{}, false, err
	}

	return Cue{
		Start: start,
		End:   end,
		Text:  strings.Join(lines[timing+1:], "\n"),
	}, true, nil
}

// ParseTimestamp parses HH:MM:SS.mmm or MM:SS.mmm into milliseconds. The
// millisecond separator may be '.' (WebVTT) or ',' (SRT).
func ParseTimestamp(s string) (int64, error) {
	clock, frac, ok := strings.Cut(strings.Replace(s, ",", ".", 1), ".")
	if !ok || len(frac) != 3 {
		return 0, fmt.Errorf("timestamp %q: want [HH:]MM:SS.mmm", s)
	}
	ms, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: %w", s, err)
	}

	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q: want [HH:]MM:SS.mmm", s)
	}
	var total int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("timestamp %q: bad field %q", s, p)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("timestamp %q: field %q out of range", s, p)
		}
		total = total*60 + v
	}
	return total*1000 + ms, nil
}
