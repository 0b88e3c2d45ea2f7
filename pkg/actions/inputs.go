package actions

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// UploadedFile is the file picked for upload, read once at upload time.
type UploadedFile struct {
	Name    string
	Content []byte
}

// FileSource yields the currently selected file, if any.
type FileSource interface {
	Selected() (UploadedFile, bool)
}

// ChatInput is the chat text field.
type ChatInput interface {
	Value() string
	Clear()
}

// FileSelection holds at most one pending file. Selecting again replaces it.
type FileSelection struct {
	mu   sync.Mutex
	file *UploadedFile
}

var _ FileSource = &FileSelection{}

func (s *FileSelection) Selected() (UploadedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return UploadedFile{}, false
	}
	return *s.file, true
}

func (s *FileSelection) Select(f UploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = &f
}

func (s *FileSelection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = nil
}

// SelectPath reads path and makes it the pending file.
func (s *FileSelection) SelectPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("empty path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	s.Select(UploadedFile{Name: filepath.Base(path), Content: b})
	return nil
}

// BufferedInput is a ChatInput holding a captured value, used when the real
// text field lives in a UI loop that must not be touched from an action.
type BufferedInput struct {
	mu    sync.Mutex
	value string
}

var _ ChatInput = &BufferedInput{}

func NewBufferedInput(v string) *BufferedInput {
	return &BufferedInput{value: v}
}

func (b *BufferedInput) Value() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *BufferedInput) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = ""
}
