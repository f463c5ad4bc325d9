package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DefaultReader reads SRT and ASS/SSA subtitle files, dispatching on the
// file extension.
type DefaultReader struct {
	path string
}

// NewReader creates a new subtitle file reader
func NewReader(
	path string,
) Reader {
	return &DefaultReader{
		path: path,
	}
}

func (r *DefaultReader) Read() (*File, error) {
	if _, err := os.Stat(r.path); os.IsNotExist(err) {
		return nil, fmt.Errorf("subtitle file does not exist: %s", r.path)
	}

	switch strings.ToLower(filepath.Ext(r.path)) {
	case ".srt":
		return r.readSRT()
	case ".ass", ".ssa":
		return r.readASS()
	default:
		return nil, fmt.Errorf("unsupported subtitle format: %s", r.path)
	}
}

func (r *DefaultReader) readSRT() (*File, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer file.Close()

	var lines []Line
	scanner := bufio.NewScanner(file)

	currentLine := Line{}
	state := "index" // possible values: "index", "time", "text"
	var textLines []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch state {
		case "index":
			if line == "" {
				continue
			}
			index, err := strconv.Atoi(line)
			if err != nil {
				continue // skip non-index lines
			}
			currentLine.Index = index
			state = "time"

		case "time":
			if line == "" {
				continue
			}
			startTime, endTime, err := parseSRTTime(line)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			currentLine.StartTime = startTime
			currentLine.EndTime = endTime
			state = "text"
			textLines = []string{}

		case "text":
			if line == "" {
				// subtitle text ends
				if len(textLines) > 0 {
					currentLine.Text = strings.Join(textLines, "\n")
					lines = append(lines, currentLine)
					currentLine = Line{}
				}
				state = "index"
				textLines = []string{}
			} else {
				textLines = append(textLines, line)
			}
		}
	}

	// handle last subtitle group
	if state == "text" && len(textLines) > 0 {
		currentLine.Text = strings.Join(textLines, "\n")
		lines = append(lines, currentLine)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	return &File{
		Lines:    lines,
		Language: detectLanguage(lines),
		Format:   "SRT",
		Path:     r.path,
	}, nil
}

// readASS parses the [Events] section of an ASS/SSA file. Everything before
// it is kept verbatim as the header; Dialogue text keeps its override tags.
func (r *DefaultReader) readASS() (*File, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open subtitle file: %w", err)
	}
	defer file.Close()

	var header strings.Builder
	var lines []Line
	var format []string
	inEvents := false
	index := 0

	scanner := bufio.NewScanner(file)
	// ASS lines can be long; raise the scanner buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		raw := scanner.Text()
		trimmed := strings.TrimSpace(raw)

		if !inEvents {
			header.WriteString(raw)
			header.WriteString("\n")
			if strings.EqualFold(trimmed, "[Events]") {
				inEvents = true
			}
			continue
		}

		if strings.HasPrefix(trimmed, "Format:") {
			header.WriteString(raw)
			header.WriteString("\n")
			fields := strings.Split(strings.TrimPrefix(trimmed, "Format:"), ",")
			format = format[:0]
			for _, f := range fields {
				format = append(format, strings.TrimSpace(f))
			}
			continue
		}

		if !strings.HasPrefix(trimmed, "Dialogue:") {
			continue
		}
		if len(format) == 0 {
			return nil, fmt.Errorf("dialogue before Format line in %s", r.path)
		}

		body := strings.TrimSpace(strings.TrimPrefix(trimmed, "Dialogue:"))
		// The text field is last and may contain commas.
		parts := strings.SplitN(body, ",", len(format))
		if len(parts) != len(format) {
			continue
		}

		index++
		line := Line{Index: index}
		for i, name := range format {
			value := parts[i]
			switch strings.ToLower(name) {
			case "start":
				line.StartTime, _ = parseASSTime(strings.TrimSpace(value))
			case "end":
				line.EndTime, _ = parseASSTime(strings.TrimSpace(value))
			case "style":
				line.Style = strings.TrimSpace(value)
			case "text":
				line.Text = value
			}
		}
		line.DialoguePrefix = body[:len(body)-len(parts[len(parts)-1])]
		lines = append(lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	if !inEvents {
		return nil, fmt.Errorf("no [Events] section in %s", r.path)
	}

	return &File{
		Lines:    lines,
		Language: detectLanguage(lines),
		Format:   "ASS",
		Path:     r.path,
		Header:   header.String(),
	}, nil
}

// parseSRTTime parses SRT time format
func parseSRTTime(timeString string) (time.Duration, time.Duration, error) {
	// SRT time format: 00:02:16,612 --> 00:02:19,376
	re := regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3}) --> (\d{2}):(\d{2}):(\d{2}),(\d{3})`)
	matches := re.FindStringSubmatch(timeString)

	if len(matches) != 9 {
		return 0, 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	parseTime := func(hours, minutes, seconds, milliseconds string) time.Duration {
		h, _ := strconv.Atoi(hours)
		m, _ := strconv.Atoi(minutes)
		s, _ := strconv.Atoi(seconds)
		ms, _ := strconv.Atoi(milliseconds)

		return time.Duration(h)*time.Hour +
			time.Duration(m)*time.Minute +
			time.Duration(s)*time.Second +
			time.Duration(ms)*time.Millisecond
	}

	startTime := parseTime(matches[1], matches[2], matches[3], matches[4])
	endTime := parseTime(matches[5], matches[6], matches[7], matches[8])

	return startTime, endTime, nil
}

var assTimeRe = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})\.(\d{2})$`)

// parseASSTime parses ASS time format (H:MM:SS.cc, centisecond precision).
func parseASSTime(timeString string) (time.Duration, error) {
	matches := assTimeRe.FindStringSubmatch(timeString)
	if matches == nil {
		return 0, fmt.Errorf("invalid time format: %s", timeString)
	}

	h, _ := strconv.Atoi(matches[1])
	m, _ := strconv.Atoi(matches[2])
	s, _ := strconv.Atoi(matches[3])
	cs, _ := strconv.Atoi(matches[4])

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(cs)*10*time.Millisecond, nil
}

// detectLanguage takes a majority vote over per-line detection
func detectLanguage(lines []Line) language.Tag {
	if len(lines) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)

	for _, line := range lines {
		lang := whatlanggo.DetectLang(line.Text).Iso6391()
		langMap[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount {
			topLang = lang
			topCount = count
		}
	}

	return language.All.Make(topLang)
}
