// Package chunker splits markdown text into brick-sized sections.
package chunker

import (
	"strings"
)

const (
	DefaultTargetSize = 800
	DefaultMaxSize    = 1200
)

// Options configures chunking behavior.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Section is a piece of the source text with the heading it sits under.
type Section struct {
	Heading   string
	Text      string
	StartLine int
	EndLine   int
}

// Split breaks text into sections. Short text (<= MaxSize) is one section.
// Sections never merge across a heading, so each keeps a meaningful title.
func Split(text string, opts Options) []Section {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	if len(text) <= opts.MaxSize {
		lines := strings.Count(text, "\n")
		return []Section{{Heading: FirstHeading(text), Text: text, StartLine: 1, EndLine: lines + 1}}
	}

	return mergeBlocks(splitBlocks(text), opts)
}

// FirstHeading returns the text of the first markdown heading, or "".
func FirstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if h, ok := headingText(line); ok {
			return h
		}
	}
	return ""
}

func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	h := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
	return h, h != ""
}

// block is a run of lines under one heading, split on blank-line pairs.
type block struct {
	heading   string
	text      string
	startLine int
	endLine   int
	// opens is true when the block starts with its heading line.
	opens bool
}

func splitBlocks(text string) []block {
	lines := strings.Split(text, "\n")
	var blocks []block
	var current []string
	startLine := 1
	heading := ""
	opens := false

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			blocks = append(blocks, block{heading: heading, text: t, startLine: startLine, endLine: endLine, opens: opens})
		}
		current = nil
		startLine = endLine + 1
		opens = false
	}

	prevEmpty := false
	for i, line := range lines {
		lineNum := i + 1

		if h, ok := headingText(line); ok {
			flush(lineNum - 1)
			startLine = lineNum
			heading = h
			opens = true
		}

		if strings.TrimSpace(line) == "" {
			if prevEmpty && len(current) > 0 {
				flush(lineNum - 1)
			}
			prevEmpty = true
			current = append(current, line)
			continue
		}
		prevEmpty = false
		current = append(current, line)
	}
	flush(len(lines))

	return blocks
}

// mergeBlocks joins consecutive blocks of the same heading up to TargetSize
// and hard-splits anything over MaxSize.
func mergeBlocks(blocks []block, opts Options) []Section {
	var results []Section
	var accum block
	has := false

	flushAccum := func() {
		if !has {
			return
		}
		t := strings.TrimSpace(accum.text)
		if len(t) > opts.MaxSize {
			for _, s := range hardSplit(t, accum.startLine, opts) {
				s.Heading = accum.heading
				results = append(results, s)
			}
		} else if t != "" {
			lines := strings.Count(t, "\n")
			results = append(results, Section{Heading: accum.heading, Text: t, StartLine: accum.startLine, EndLine: accum.startLine + lines})
		}
		has = false
	}

	for _, b := range blocks {
		if !has {
			accum, has = b, true
			continue
		}
		combined := accum.text + "\n\n" + b.text
		if !b.opens && b.heading == accum.heading && len(combined) <= opts.TargetSize {
			accum.text = combined
			accum.endLine = b.endLine
			continue
		}
		flushAccum()
		accum, has = b, true
	}
	flushAccum()

	return results
}

// hardSplit breaks text that exceeds MaxSize on line boundaries.
func hardSplit(text string, startLine int, opts Options) []Section {
	lines := strings.Split(text, "\n")
	var results []Section
	var current []string
	curStart := startLine
	curLen := 0

	emit := func(endLine int) {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			results = append(results, Section{Text: t, StartLine: curStart, EndLine: endLine})
		}
	}

	for i, line := range lines {
		if curLen+len(line) > opts.TargetSize && len(current) > 0 {
			emit(startLine + i - 1)
			current = nil
			curStart = startLine + i
			curLen = 0
		}
		current = append(current, line)
		curLen += len(line) + 1
	}
	if len(current) > 0 {
		emit(startLine + len(lines) - 1)
	}

	return results
}
