package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/interviewprep/interviewprep/internal/model"
)

// Recorder captures one artifact from a stream.
type Recorder interface {
	Start(ctx context.Context) error
	// Stop returns once the recorder has flushed its artifact.
	Stop(ctx context.Context) (*model.Blob, error)
}

// RecorderFactory builds a recorder over a stream for the question at index.
type RecorderFactory func(s Stream, question int) (Recorder, error)

// FileDevice serves pre-recorded answers from a directory. Answer files are
// named by 1-based question number, e.g. 01.webm or 02.mp3.
type FileDevice struct {
	Dir string
}

// Open checks the directory and returns a stream whose tracks stay live
// until stopped.
func (d FileDevice) Open(ctx context.Context, video bool) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(d.Dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d.Dir)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Dir)
	case err != nil:
		return nil, err
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDeviceNotFound, d.Dir)
	}

	s := &fileStream{dir: d.Dir, tracks: []Track{&fileTrack{kind: KindAudio}}}
	if video {
		s.tracks = append(s.tracks, &fileTrack{kind: KindVideo})
	}
	return s, nil
}

// AnswerFile returns the answer file for the question at index, or "".
func AnswerFile(dir string, question int) string {
	matches, _ := filepath.Glob(filepath.Join(dir, fmt.Sprintf("%02d.*", question+1)))
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// FileRecorders returns a factory whose recorders read answer files from the
// stream's directory.
func FileRecorders() RecorderFactory {
	return func(s Stream, question int) (Recorder, error) {
		stream, ok := s.(*fileStream)
		if !ok {
			return nil, fmt.Errorf("%w: not a file stream", ErrUnavailable)
		}
		return &fileRecorder{stream: stream, question: question}, nil
	}
}

type fileTrack struct {
	kind    Kind
	stopped atomic.Bool
}

func (t *fileTrack) Kind() Kind { return t.kind }
func (t *fileTrack) Live() bool { return !t.stopped.Load() }
func (t *fileTrack) Stop() { t.stopped.Store(true) }

type fileStream struct {
	dir    string
	tracks []Track
}

func (s *fileStream) Tracks() []Track { return s.tracks }

func (s *fileStream) AudioOnly() Stream {
	audio := &fileStream{dir: s.dir}
	for _, t := range s.tracks {
		if t.Kind() == KindAudio {
			audio.tracks = append(audio.tracks, t)
		}
	}
	return audio
}

func (s *fileStream) hasVideo() bool {
	for _, t := range s.tracks {
		if t.Kind() == KindVideo {
			return true
		}
	}
	return false
}

type fileRecorder struct {
	stream   *fileStream
	question int

	mu      sync.Mutex
	started bool
}

func (r *fileRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("recorder already started")
	}
	if AnswerFile(r.stream.dir, r.question) == "" {
		return fmt.Errorf("%w: no answer file for question %d", ErrDeviceNotFound, r.question+1)
	}
	r.started = true
	return nil
}

func (r *fileRecorder) Stop(ctx context.Context) (*model.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil, errors.New("recorder not started")
	}
	r.started = false

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := AnswerFile(r.stream.dir, r.question)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answer file: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "audio/webm"
		if r.stream.hasVideo() {
			mimeType = "video/webm"
		}
	}
	return &model.Blob{MIMEType: mimeType, Data: data}, nil
}
