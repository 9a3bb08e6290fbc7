package domain

import (
	"strconv"

	"timesheet/internal/timecalc"
)

// TaskField selects which half of a task an edit targets.
type TaskField string

const (
	TaskContent TaskField = "content"
	TaskTime    TaskField = "time"
)

// NextSlot derives the times of a row inserted after a row ending at prevEnd.
func NextSlot(prevEnd string) (start, end string) {
	if prevEnd == "" {
		return "", ""
	}
	h, m, ok := timecalc.ParseClock(prevEnd)
	if !ok {
		return prevEnd, ""
	}
	return prevEnd, timecalc.FormatClock((h+1)%24, m)
}

// InsertRowAfter returns a copy of entries with a blank row spliced in after
// index. The new row continues from the previous row's end time. Index is
// clamped to the valid range; on an empty sheet the row is simply appended.
func InsertRowAfter(entries []TimeEntry, index int) []TimeEntry {
	row := TimeEntry{
		ID:    NextEntryID(entries),
		Tasks: EmptyTasks(),
	}
	if len(entries) == 0 {
		return []TimeEntry{row}
	}
	index = max(0, min(index, len(entries)-1))
	row.StartTime, row.EndTime = NextSlot(entries[index].EndTime)

	out := make([]TimeEntry, 0, len(entries)+1)
	out = append(out, CloneEntries(entries[:index+1])...)
	out = append(out, row)
	out = append(out, CloneEntries(entries[index+1:])...)
	return out
}

// CascadeStartTimes anchors every row to the first row's start time: row i
// starts where row i-1 ends, each one hour long. An empty start clears all
// times.
func CascadeStartTimes(entries []TimeEntry, start string) []TimeEntry {
	out := CloneEntries(entries)
	if start == "" {
		for i := range out {
			out[i].StartTime = ""
			out[i].EndTime = ""
		}
		return out
	}
	current := start
	for i := range out {
		out[i].StartTime = current
		out[i].EndTime = timecalc.AddOneHour(current)
		current = out[i].EndTime
	}
	return out
}

// UpdateTask returns a copy of entries with one task field replaced. Time
// values that are not integers become 0. Unknown rows or task indexes leave
// the copy unchanged.
func UpdateTask(entries []TimeEntry, entryID string, taskIndex int, field TaskField, value string) []TimeEntry {
	out := NormalizeEntries(entries)
	for i := range out {
		if out[i].ID != entryID {
			continue
		}
		if taskIndex < 0 || taskIndex >= len(out[i].Tasks) {
			return out
		}
		switch field {
		case TaskContent:
			out[i].Tasks[taskIndex].Content = value
		case TaskTime:
			n, err := strconv.Atoi(value)
			if err != nil {
				n = 0
			}
			out[i].Tasks[taskIndex].Time = n
		}
		return out
	}
	return out
}
