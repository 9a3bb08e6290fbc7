package migrate

import (
	"path"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"0001_session_documents.sql", 1, false},
		{"0042_x.sql", 42, false},
		{"_missing.sql", 0, true},
		{"nounderscore.sql", 0, true},
		{"abc_def.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := parseVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVersion(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseVersion(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestFilesPerDialect(t *testing.T) {
	for _, d := range []Dialect{MySQL, SQLite} {
		files, err := Files(d)
		if err != nil {
			t.Fatalf("Files(%s): %v", d, err)
		}
		if len(files) < 2 {
			t.Fatalf("Files(%s) = %v, want at least 2 migrations", d, files)
		}
		if got := path.Base(files[0]); got != "0001_session_documents.sql" {
			t.Errorf("Files(%s)[0] = %q, want 0001_session_documents.sql", d, got)
		}
	}
	if _, err := Files("oracle"); err == nil {
		t.Error("expected error for unknown dialect")
	}
}
