package pathlist

import (
	"os"
	"path/filepath"
	"testing"
)

func writePathFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paths.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "trailing newline drops no entry",
			content: "/a\n/b\n/c\n",
			want:    []string{"/a", "/b", "/c"},
		},
		{
			name:    "no trailing newline",
			content: "/a\n/b",
			want:    []string{"/a", "/b"},
		},
		{
			name:    "interior blank lines kept",
			content: "/a\n\n/b\n",
			want:    []string{"/a", "", "/b"},
		},
		{
			name:    "crlf endings accepted",
			content: "/a\r\n/b\r\n",
			want:    []string{"/a", "/b"},
		},
		{
			name:    "empty file",
			content: "",
			want:    nil,
		},
		{
			name:    "duplicates kept",
			content: "/a\n/a\n",
			want:    []string{"/a", "/a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(writePathFile(t, tt.content))
			if err != nil {
				t.Fatalf("Parse returned error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Got %d paths %v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("paths[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
