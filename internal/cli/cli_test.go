package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"timesheet/internal/domain"
)

func TestPrintSessions(t *testing.T) {
	idx := domain.SessionsByDate{
		"2024": {
			"2024-03": {
				{ID: "b", SessionDate: "2024-03-15", TotalHours: 90, UpdatedAt: time.Now().Add(-3 * time.Hour)},
				{ID: "a", SessionDate: "2024-03-01"},
			},
		},
		"2023": {
			"2023-12": {{ID: "z", SessionDate: "2023-12-31", TotalHours: 45}},
		},
	}
	var buf bytes.Buffer
	if err := printSessions(&buf, idx); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"March 2024", "December 2023", "1h 30m", "3 hours ago", "never", "45m"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "March 2024") > strings.Index(out, "December 2023") {
		t.Errorf("years not newest first:\n%s", out)
	}
	if strings.Index(out, "2024-03-15") > strings.Index(out, "2024-03-01") {
		t.Errorf("sessions not newest first:\n%s", out)
	}
}

func TestPrintSessionsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printSessions(&buf, domain.SessionsByDate{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No sessions yet") {
		t.Errorf("got %q", buf.String())
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"login"}, {"logout"}, {"whoami"},
		{"gate", "login"}, {"gate", "logout"}, {"gate", "status"},
		{"sessions"}, {"show"}, {"new"}, {"export"}, {"delete"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[len(path)-1] {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestGateCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("TIMESHEET_CONFIG", dir+"/none.toml")
	t.Setenv("TIMESHEET_DATA_DIR", dir)
	t.Setenv("TIMESHEET_STORE", "memory")
	t.Setenv("BASIC_AUTH_ENABLED", "true")
	t.Setenv("BASIC_AUTH_USERNAME", "admin")
	t.Setenv("BASIC_AUTH_PASSWORD", "secret")

	run := func(in string, args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetArgs(args)
		rootCmd.SetIn(strings.NewReader(in))
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		err := rootCmd.Execute()
		return out.String(), err
	}

	if out, err := run("", "gate", "status"); err != nil || !strings.Contains(out, "Locked") {
		t.Fatalf("status = %q, %v", out, err)
	}
	if _, err := run("wrong\n", "gate", "login", "--user", "admin"); err == nil {
		t.Fatal("login with wrong password succeeded")
	}
	if out, err := run("secret\n", "gate", "login", "--user", "admin"); err != nil || !strings.Contains(out, "Unlocked") {
		t.Fatalf("login = %q, %v", out, err)
	}
	if out, err := run("", "gate", "status"); err != nil || !strings.Contains(out, "Unlocked") {
		t.Fatalf("status after login = %q, %v", out, err)
	}
	if _, err := run("", "gate", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if out, _ := run("", "gate", "status"); !strings.Contains(out, "Locked") {
		t.Fatalf("status after logout = %q", out)
	}
}
