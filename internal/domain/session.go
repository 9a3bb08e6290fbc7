package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"timesheet/internal/timecalc"
)

// User is the authenticated identity the sheet belongs to.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Session is one day of tracked work for one user.
type Session struct {
	ID          string      `json:"-"`
	SessionDate string      `json:"sessionDate"`
	Entries     []TimeEntry `json:"entries"`
	TotalHours  int         `json:"totalHours"` // minutes
	UserID      string      `json:"userId"`
	Memo        string      `json:"memo,omitempty"`
	CreatedAt   time.Time   `json:"-"`
	UpdatedAt   time.Time   `json:"-"`
}

// NewSession returns an unsaved default session for date.
func NewSession(date, userID string) Session {
	return Session{
		SessionDate: date,
		Entries:     DefaultEntries(),
		UserID:      userID,
	}
}

// Clone returns a copy that shares no entry or task storage with s.
func (s Session) Clone() Session {
	s.Entries = CloneEntries(s.Entries)
	return s
}

// Fields is the stored shape of s, as written to a document.
func (s Session) Fields() map[string]any {
	entries := s.Entries
	if entries == nil {
		entries = []TimeEntry{}
	}
	fields := map[string]any{
		"sessionDate": s.SessionDate,
		"entries":     entries,
		"totalHours":  CalculateTotalHours(entries),
		"userId":      s.UserID,
	}
	if s.Memo != "" {
		fields["memo"] = s.Memo
	}
	return fields
}

// Document is a stored record: raw fields plus the identifier assigned by the
// store.
type Document struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DecodeSession reads a stored document. It reports false when the document
// body is not a JSON object. Missing fields are left at their zero value,
// entries are normalized to three tasks each and TotalHours is recomputed.
func DecodeSession(doc Document) (Session, bool) {
	data := bytes.TrimSpace(doc.Data)
	if len(data) == 0 || data[0] != '{' {
		return Session{}, false
	}
	var raw struct {
		SessionDate any             `json:"sessionDate"`
		Entries     json.RawMessage `json:"entries"`
		UserID      any             `json:"userId"`
		Memo        any             `json:"memo"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Session{}, false
	}
	s := Session{
		ID:        doc.ID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	s.SessionDate, _ = raw.SessionDate.(string)
	s.UserID, _ = raw.UserID.(string)
	s.Memo, _ = raw.Memo.(string)

	var entries []TimeEntry
	if err := json.Unmarshal(raw.Entries, &entries); err == nil {
		s.Entries = NormalizeEntries(entries)
	}
	s.TotalHours = CalculateTotalHours(s.Entries)
	return s, true
}

// SessionsByDate indexes sessions as year -> "YYYY-MM" -> sessions, newest
// first within each month.
type SessionsByDate map[string]map[string][]Session

// Years returns the index's years, newest first.
func (idx SessionsByDate) Years() []string {
	years := make([]string, 0, len(idx))
	for y := range idx {
		years = append(years, y)
	}
	slices.Sort(years)
	slices.Reverse(years)
	return years
}

// Months returns the month keys of year, newest first.
func (idx SessionsByDate) Months(year string) []string {
	months := make([]string, 0, len(idx[year]))
	for m := range idx[year] {
		months = append(months, m)
	}
	slices.Sort(months)
	slices.Reverse(months)
	return months
}

// GroupByDate builds the history index from raw documents. Documents that are
// not objects are skipped; a missing date means today, a missing entries list
// becomes empty and a missing user becomes defaultUserID.
func GroupByDate(docs []Document, today, defaultUserID string) SessionsByDate {
	idx := SessionsByDate{}
	for _, doc := range docs {
		s, ok := DecodeSession(doc)
		if !ok {
			continue
		}
		if s.SessionDate == "" {
			s.SessionDate = today
		}
		if s.Entries == nil {
			s.Entries = []TimeEntry{}
		}
		if s.UserID == "" {
			s.UserID = defaultUserID
		}
		year := timecalc.YearOf(s.SessionDate)
		month := timecalc.MonthKeyOf(s.SessionDate)
		if idx[year] == nil {
			idx[year] = map[string][]Session{}
		}
		idx[year][month] = append(idx[year][month], s)
	}
	for _, months := range idx {
		for _, sessions := range months {
			slices.SortStableFunc(sessions, func(a, b Session) int {
				return timecalc.CompareSessionsDescending(a.SessionDate, b.SessionDate)
			})
		}
	}
	return idx
}
