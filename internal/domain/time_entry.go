package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const (
	// DefaultEntryCount is the number of rows a fresh session starts with.
	DefaultEntryCount = 9
	// TasksPerEntry is the fixed number of task slots on every row.
	TasksPerEntry = 3
)

// WorkTask is one unit of work inside a row. Time is in minutes.
type WorkTask struct {
	Content string `json:"content"`
	Time    int    `json:"time"`
}

// UnmarshalJSON tolerates stored documents where time is missing, null, a
// numeric string or garbage; anything that is not a number decodes to 0.
func (t *WorkTask) UnmarshalJSON(data []byte) error {
	var raw struct {
		Content any             `json:"content"`
		Time    json.RawMessage `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// Not an object at all: keep an empty task.
		*t = WorkTask{}
		return nil
	}
	t.Content, _ = raw.Content.(string)
	t.Time = decodeMinutes(raw.Time)
	return nil
}

func decodeMinutes(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return 0
}

// TimeEntry is one row of the sheet: a time slot with exactly three tasks.
type TimeEntry struct {
	ID        string     `json:"id"`
	StartTime string     `json:"startTime"`
	EndTime   string     `json:"endTime"`
	Tasks     []WorkTask `json:"tasks"`
}

// EmptyTasks returns TasksPerEntry blank tasks.
func EmptyTasks() []WorkTask {
	return make([]WorkTask, TasksPerEntry)
}

// DefaultEntries builds the nine blank rows, ids "1".."9".
func DefaultEntries() []TimeEntry {
	entries := make([]TimeEntry, DefaultEntryCount)
	for i := range entries {
		entries[i] = TimeEntry{
			ID:    strconv.Itoa(i + 1),
			Tasks: EmptyTasks(),
		}
	}
	return entries
}

// CalculateTotalHours sums task minutes over all rows. The name is historical;
// the unit is minutes.
func CalculateTotalHours(entries []TimeEntry) int {
	total := 0
	for _, e := range entries {
		for _, task := range e.Tasks {
			total += task.Time
		}
	}
	return total
}

// CloneEntries deep-copies rows and their tasks.
func CloneEntries(entries []TimeEntry) []TimeEntry {
	if entries == nil {
		return nil
	}
	out := make([]TimeEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		out[i].Tasks = append([]WorkTask(nil), e.Tasks...)
	}
	return out
}

// NormalizeEntries pads or trims every row to exactly TasksPerEntry tasks.
// The input is not modified.
func NormalizeEntries(entries []TimeEntry) []TimeEntry {
	if entries == nil {
		return nil
	}
	out := CloneEntries(entries)
	for i := range out {
		tasks := out[i].Tasks
		if len(tasks) > TasksPerEntry {
			tasks = tasks[:TasksPerEntry]
		}
		for len(tasks) < TasksPerEntry {
			tasks = append(tasks, WorkTask{})
		}
		out[i].Tasks = tasks
	}
	return out
}

// NextEntryID returns max(numeric ids)+1; non-numeric ids count as 0.
func NextEntryID(entries []TimeEntry) string {
	highest := 0
	for _, e := range entries {
		n, err := strconv.Atoi(e.ID)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}
