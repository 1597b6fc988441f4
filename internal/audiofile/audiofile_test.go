package audiofile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newDir(t *testing.T) *Dir {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "audio"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestSaveAndOpen(t *testing.T) {
	t.Parallel()
	d := newDir(t)

	name, err := d.Save([]byte("RIFF....WAVE"), ".wav")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(name, ".wav") || len(name) != 36+len(".wav") {
		t.Errorf("name = %q, want <uuid>.wav", name)
	}

	f, info, err := d.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if info.Size() != 12 {
		t.Errorf("size = %d, want 12", info.Size())
	}
	data, _ := io.ReadAll(f)
	if string(data) != "RIFF....WAVE" {
		t.Errorf("data = %q", data)
	}
}

func TestSaveUsesUniqueNamesAndLeavesNoTemp(t *testing.T) {
	t.Parallel()
	d := newDir(t)
	a, _ := d.Save([]byte("a"), ".mp3")
	b, _ := d.Save([]byte("b"), ".mp3")
	if a == b {
		t.Fatalf("duplicate name %q", a)
	}
	entries, err := os.ReadDir(d.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2 (no leftover temp files)", len(entries))
	}
}

func TestOpenRejectsTraversalAndMissing(t *testing.T) {
	t.Parallel()
	d := newDir(t)
	secret := filepath.Join(filepath.Dir(d.Root()), "secret.wav")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(d.Root(), "sub.wav"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{
		"../secret.wav",
		`..\secret.wav`,
		"missing.wav",
		"",
		"..",
		".partial-123",
		"sub.wav",
	} {
		if f, _, err := d.Open(name); !errors.Is(err, ErrNotFound) {
			if f != nil {
				f.Close()
			}
			t.Errorf("Open(%q): err = %v, want ErrNotFound", name, err)
		}
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"abc.wav", "abc.wav", true},
		{"a/b/c.mp3", "c.mp3", true},
		{"../../etc/passwd", "passwd", true},
		{`dir\file.wav`, "file.wav", true},
		{"", "", false},
		{"/", "", false},
		{".hidden", "", false},
	}
	for _, tt := range tests {
		got, ok := Sanitize(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Sanitize(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	d := newDir(t)
	name, _ := d.Save([]byte("x"), ".wav")
	if err := d.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, _, err := d.Open(name); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after Remove: %v", err)
	}
	if err := d.Remove(name); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error")
	}
}
