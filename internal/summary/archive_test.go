package summary

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/interviewprep/interviewprep/internal/model"
)

func TestWriteArchive(t *testing.T) {
	text := "I enjoy working with people."
	fb := scored(74)

	audio := recorded("Why do you want to be a dentist? Tell us about the moment you decided.", "audio-bytes")
	audio.Transcript, audio.Feedback = &text, &fb
	video := recorded("Describe a conflict/resolution", "")
	video.Media = &model.MediaBlobs{
		Audio: &model.Blob{MIMEType: "audio/mpeg", Data: []byte("mp3")},
		Video: &model.Blob{MIMEType: "video/webm", Data: []byte("webm")},
	}

	var buf bytes.Buffer
	if err := WriteArchive(&buf, []model.Answer{audio, skipped("Q2"), video}); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}

	entries := map[string]*zip.File{}
	var names []string
	for _, f := range zr.File {
		entries[f.Name] = f
		names = append(names, f.Name)
	}
	want := []string{
		"Q1 - Why do you want to be a dentist? Tell us about the/audio.webm",
		"Q1 - Why do you want to be a dentist? Tell us about the/transcript.txt",
		"Q1 - Why do you want to be a dentist? Tell us about the/feedback.json",
		"Q2 - Q2/skipped.txt",
		"Q3 - Describe a conflict-resolution/audio.mp3",
		"Q3 - Describe a conflict-resolution/video.webm",
	}
	if !slices.Equal(names, want) {
		t.Fatalf("entries =\n%s\nwant\n%s", strings.Join(names, "\n"), strings.Join(want, "\n"))
	}

	read := func(name string) []byte {
		t.Helper()
		rc, err := entries[name].Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return data
	}
	if got := read(want[0]); string(got) != "audio-bytes" {
		t.Errorf("audio = %q", got)
	}
	var got model.ScoreResult
	if err := json.Unmarshal(read(want[2]), &got); err != nil || got.OverallScore != 74 {
		t.Errorf("feedback = %+v, %v", got, err)
	}
}

func TestFolderName(t *testing.T) {
	tests := []struct {
		i        int
		question string
		want     string
	}{
		{0, "Why dentistry?", "Q1 - Why dentistry?/"},
		{4, "  ", "Q5/"},
		{1, "Line one\nline two", "Q2 - Line one line two/"},
		{2, strings.Repeat("é", 60), "Q3 - " + strings.Repeat("é", 50) + "/"},
	}
	for _, tt := range tests {
		if got := folderName(tt.i, tt.question); got != tt.want {
			t.Errorf("folderName(%d, %q) = %q, want %q", tt.i, tt.question, got, tt.want)
		}
	}
}
