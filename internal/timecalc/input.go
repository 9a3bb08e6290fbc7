package timecalc

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDateInput turns user input into a session date. It accepts YYYY-MM-DD
// and natural language such as "yesterday" or "last friday". Empty input
// means today.
func ParseDateInput(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TodayAt(now), nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout), nil
	}
	switch strings.ToLower(s) {
	case "today":
		return TodayAt(now), nil
	}
	result, err := parser.Parse(s, now.In(Location()))
	if err != nil {
		return "", fmt.Errorf("parsing date %q: %w", s, err)
	}
	if result == nil {
		return "", fmt.Errorf("unrecognized date %q, expected YYYY-MM-DD or e.g. \"yesterday\"", s)
	}
	return result.Time.Format(DateLayout), nil
}
