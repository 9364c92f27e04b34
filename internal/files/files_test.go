package files

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "Unknown"},
		{"plain", "Smith", "Smith"},
		{"spaces", "John  Smith", "John_Smith"},
		{"invalid chars", `A<B>:C"D/E\F|G?H*I`, "A_B_C_D_E_F_G_H_I"},
		{"only invalid", `///`, "Unknown"},
		{"long", strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTimestampedNameFormat(t *testing.T) {
	plain := regexp.MustCompile(`^img_\d{8}_\d{6}\.jpg$`)
	if name := TimestampedName("img", "jpg", false); !plain.MatchString(name) {
		t.Errorf("TimestampedName without id = %q", name)
	}
	withID := regexp.MustCompile(`^vid_\d{8}_\d{6}_\d{1,4}\.avi$`)
	if name := TimestampedName("vid", "avi", true); !withID.MatchString(name) {
		t.Errorf("TimestampedName with id = %q", name)
	}
}

func TestGetFilePathPatientScoped(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := m.GetFilePath(KindImage, "img_1.jpg", "St Mary", "John Smith", "P42")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(m.DataDir(), "hospitals", "St_Mary", "media", "John_Smith_P42", "images", "img_1.jpg")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("directory not created: %v", err)
	}

	video, err := m.GetFilePath(KindVideo, "vid_1.avi", "St Mary", "John Smith", "P42")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(video, filepath.Join("John_Smith_P42", "videos")) {
		t.Errorf("video path %q not in the patient videos directory", video)
	}
}

func TestGetFilePathUnscopedFallback(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := m.GetFilePath(KindVideo, "vid_1.avi", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(m.DataDir(), "videos", "captured", "vid_1.avi")
	if path != want {
		t.Errorf("unscoped path = %q, want %q", path, want)
	}
}

func TestGetFilePathUnknownKindGoesToTemp(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path, err := m.GetFilePath("weird", "x.bin", "H", "N", "1")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != filepath.Join(m.DataDir(), "temp") {
		t.Errorf("unknown kind landed in %q", path)
	}
}

func TestGetFilePathGeneratesFilename(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path, err := m.GetFilePath(KindImage, "", "", "", "")
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "img_") || !strings.HasSuffix(base, ".jpg") {
		t.Errorf("generated filename %q, want img_*.jpg", base)
	}
}

func TestSaveCapturedImage(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data := []byte{0xFF, 0xD8, 0xFF}
	path, err := m.SaveCapturedImage(data, "img_1.jpg", "H", "Pat", "1")
	if err != nil {
		t.Fatal(err)
	}
	saved, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(saved) != string(data) {
		t.Error("saved bytes differ from input")
	}
}
