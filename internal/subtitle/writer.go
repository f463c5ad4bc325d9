package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// DefaultWriter writes SRT and ASS files, preferring translated text and
// falling back to the original when a line has none.
type DefaultWriter struct{}

// NewWriter creates a new subtitle file writer
func NewWriter() Writer {
	return &DefaultWriter{}
}

func (w *DefaultWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	if subtitle.Format == "ASS" {
		return w.writeASS(writer, subtitle)
	}
	return w.writeSRT(writer, subtitle)
}

func (w *DefaultWriter) writeSRT(writer *bufio.Writer, subtitle *File) error {
	for _, line := range subtitle.Lines {
		fmt.Fprintf(writer, "%d\n", line.Index)
		fmt.Fprintf(writer, "%s --> %s\n", formatSRTDuration(line.StartTime), formatSRTDuration(line.EndTime))
		fmt.Fprintf(writer, "%s\n\n", lineText(line))
	}
	return nil
}

func (w *DefaultWriter) writeASS(writer *bufio.Writer, subtitle *File) error {
	// The header already ends with the Format line of the Events section.
	if _, err := writer.WriteString(subtitle.Header); err != nil {
		return err
	}
	for _, line := range subtitle.Lines {
		fmt.Fprintf(writer, "Dialogue: %s%s\n", line.DialoguePrefix, lineText(line))
	}
	return nil
}

func lineText(line Line) string {
	if line.TranslatedText != "" {
		return line.TranslatedText
	}
	return line.Text
}

// formatSRTDuration formats time.Duration to SRT time format
func formatSRTDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
