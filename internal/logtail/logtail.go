package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Entry is one decoded line of the JSON log.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	RoomID  string
	Status  string
	Error   string
	Raw     string
}

// String renders the entry as a single activity line.
func (e Entry) String() string {
	if e.Message == "" {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	if e.Level != "" {
		fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	}
	b.WriteString(e.Message)
	if e.RoomID != "" {
		b.WriteString(" room=" + e.RoomID)
	}
	if e.Status != "" {
		b.WriteString(" status=" + e.Status)
	}
	if e.Error != "" {
		b.WriteString(" error=" + e.Error)
	}
	return b.String()
}

// Parse decodes a zap JSON line. Lines that are not JSON come back with only
// Raw set.
func Parse(line string) Entry {
	entry := Entry{Raw: line}
	var fields struct {
		Timestamp string `json:"timestamp"`
		Level     string `json:"level"`
		Msg       string `json:"msg"`
		RoomID    string `json:"room_id"`
		Status    string `json:"status"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}
	if ts, err := time.Parse("2006-01-02T15:04:05.000Z0700", fields.Timestamp); err == nil {
		entry.Time = ts
	}
	entry.Level = fields.Level
	entry.Message = fields.Msg
	entry.RoomID = fields.RoomID
	entry.Status = fields.Status
	entry.Error = fields.Error
	return entry
}

// ReadEntries returns at most maxLines decoded entries from the end of the
// file at path.
func ReadEntries(path string, maxLines int) ([]Entry, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Parse(line))
	}
	return entries, nil
}

// Read returns at most maxLines from the end of the file at path.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}
