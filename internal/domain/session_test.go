package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

func doc(id, data string) Document {
	return Document{ID: id, Data: json.RawMessage(data), CreatedAt: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)}
}

func TestDecodeSession(t *testing.T) {
	s, ok := DecodeSession(doc("a", `{
		"sessionDate": "2024-03-15",
		"userId": "u1",
		"memo": "notes",
		"totalHours": 999,
		"entries": [{"id":"1","startTime":"9:00","endTime":"10:00","tasks":[{"content":"x","time":"20"}]}]
	}`))
	if !ok {
		t.Fatal("DecodeSession rejected a valid document")
	}
	if s.ID != "a" || s.SessionDate != "2024-03-15" || s.UserID != "u1" || s.Memo != "notes" {
		t.Errorf("decoded = %+v", s)
	}
	if s.TotalHours != 20 {
		t.Errorf("TotalHours = %d, want recomputed 20", s.TotalHours)
	}
	if len(s.Entries) != 1 || len(s.Entries[0].Tasks) != TasksPerEntry {
		t.Errorf("entries not normalized: %+v", s.Entries)
	}
}

func TestDecodeSessionMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{"string", `"hello"`, false},
		{"array", `[1,2]`, false},
		{"empty", ``, false},
		{"null", `null`, false},
		{"broken", `{"sessionDate":`, false},
		{"wrong types", `{"sessionDate": 5, "entries": "no", "userId": []}`, true},
		{"empty object", `{}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := DecodeSession(doc("x", tt.data))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (s.SessionDate != "" || s.Entries != nil || s.TotalHours != 0) {
				t.Errorf("malformed fields not defaulted: %+v", s)
			}
		})
	}
}

func TestSessionFields(t *testing.T) {
	s := NewSession("2024-03-15", "u1")
	s.Entries[0].Tasks[0].Time = 30
	s.TotalHours = 1 // stale on purpose
	f := s.Fields()
	if f["totalHours"] != 30 {
		t.Errorf("totalHours = %v, want 30", f["totalHours"])
	}
	if _, ok := f["memo"]; ok {
		t.Error("empty memo written")
	}
	s.Memo = "m"
	if s.Fields()["memo"] != "m" {
		t.Error("memo not written")
	}

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, ok := DecodeSession(Document{ID: "id", Data: data})
	if !ok || !reflect.DeepEqual(back.Entries, s.Entries) {
		t.Errorf("fields do not decode back to the session: %+v", back)
	}
}

func TestSessionClone(t *testing.T) {
	s := NewSession("2024-03-15", "u1")
	c := s.Clone()
	c.Entries[0].Tasks[0].Content = "changed"
	c.Entries[0].StartTime = "9:00"
	if s.Entries[0].Tasks[0].Content != "" || s.Entries[0].StartTime != "" {
		t.Error("Clone shares storage")
	}
}

func TestGroupByDate(t *testing.T) {
	docs := []Document{
		doc("a", `{"sessionDate":"2024-03-01","userId":"u1"}`),
		doc("b", `{"sessionDate":"2024-03-15","userId":"u1"}`),
		doc("c", `{"sessionDate":"2024-02-20"}`),
		doc("d", `{"sessionDate":"2023-12-31","userId":"u1"}`),
		doc("e", `{}`),
		doc("bad", `42`),
	}
	idx := GroupByDate(docs, "2024-03-10", "me")

	march := idx["2024"]["2024-03"]
	var got []string
	for _, s := range march {
		got = append(got, s.ID)
	}
	// "e" has no date and lands on today.
	if want := []string{"b", "e", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("2024-03 = %v, want %v", got, want)
	}
	feb := idx["2024"]["2024-02"]
	if len(feb) != 1 || feb[0].UserID != "me" || feb[0].Entries == nil {
		t.Errorf("2024-02 = %+v", feb)
	}
	if len(idx["2023"]["2023-12"]) != 1 {
		t.Errorf("2023-12 = %+v", idx["2023"])
	}
	if got := idx.Years(); !reflect.DeepEqual(got, []string{"2024", "2023"}) {
		t.Errorf("Years = %v", got)
	}
	if got := idx.Months("2024"); !reflect.DeepEqual(got, []string{"2024-03", "2024-02"}) {
		t.Errorf("Months = %v", got)
	}
}

func TestGroupByDateUnparsableKeepsOrder(t *testing.T) {
	docs := []Document{
		doc("x", `{"sessionDate":"2024-03-zz"}`),
		doc("y", `{"sessionDate":"2024-03-01"}`),
	}
	march := GroupByDate(docs, "2024-03-10", "me")["2024"]["2024-03"]
	if len(march) != 2 || march[0].ID != "x" || march[1].ID != "y" {
		t.Errorf("unparsable dates reordered: %+v", march)
	}
}

func TestWriteError(t *testing.T) {
	err := fmt.Errorf("save: %w", &WriteError{Op: "update", ID: "a", Err: ErrNotFound})
	if !errors.Is(err, ErrWrite) || !errors.Is(err, ErrNotFound) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if got := err.Error(); got != "save: update session a: session not found" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&WriteError{Op: "create", Err: ErrNotAuthenticated}).Error(); got != "create session: not authenticated" {
		t.Errorf("Error() = %q", got)
	}
}
