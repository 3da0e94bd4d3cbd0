package summary

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/interviewprep/interviewprep/internal/model"
)

const folderTitleLen = 50

// WriteArchive writes a zip with one folder per answer holding its
// recordings, transcript and feedback. Skipped answers get a marker file.
func WriteArchive(w io.Writer, answers []model.Answer) error {
	zw := zip.NewWriter(w)
	for i, a := range answers {
		dir := folderName(i, a.Question.Text)
		if a.Skipped {
			if err := writeEntry(zw, dir+"skipped.txt", []byte("This question was skipped.\n")); err != nil {
				return err
			}
			continue
		}
		if a.Media != nil {
			if b := a.Media.Audio; b != nil {
				if err := writeEntry(zw, dir+filename(b), b.Data); err != nil {
					return err
				}
			}
			if b := a.Media.Video; b != nil {
				if err := writeEntry(zw, dir+videoName(b), b.Data); err != nil {
					return err
				}
			}
		}
		if a.Transcript != nil {
			if err := writeEntry(zw, dir+"transcript.txt", []byte(*a.Transcript+"\n")); err != nil {
				return err
			}
		}
		if a.Feedback != nil {
			data, err := json.MarshalIndent(a.Feedback, "", "  ")
			if err != nil {
				return fmt.Errorf("encode feedback for question %d: %w", i+1, err)
			}
			if err := writeEntry(zw, dir+"feedback.json", data); err != nil {
				return err
			}
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// folderName is "Q<n> - <question>" with the question cut to 50 runes and
// path separators removed.
func folderName(i int, question string) string {
	title := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, strings.TrimSpace(question))
	if r := []rune(title); len(r) > folderTitleLen {
		title = strings.TrimSpace(string(r[:folderTitleLen]))
	}
	if title == "" {
		return fmt.Sprintf("Q%d/", i+1)
	}
	return fmt.Sprintf("Q%d - %s/", i+1, title)
}

func videoName(b *model.Blob) string {
	if strings.HasPrefix(b.MIMEType, "video/mp4") {
		return "video.mp4"
	}
	return "video.webm"
}
