// Package artifact manages uploaded files: metadata in the kv store,
// payloads in a storage.FileStore, and text extraction for prompt
// building. Conversation turns reference artifacts by id without owning
// them.
package artifact

import (
	"errors"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when an artifact id is unknown.
var ErrNotFound = errors.New("artifact: not found")

// Ref describes one uploaded artifact. The payload itself lives in the
// file store under Path.
type Ref struct {
	ID         string    `msgpack:"id" json:"id"`
	Name       string    `msgpack:"name" json:"name"`
	Path       string    `msgpack:"path" json:"-"`
	UploadedAt time.Time `msgpack:"uploaded_at" json:"upload_time"`
}

// Ext returns the artifact's lowercased filename extension without the
// leading dot.
func (r Ref) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(r.Name)), ".")
}

// IsAudio reports whether the artifact is a supported audio recording.
func (r Ref) IsAudio() bool {
	return audioExts[r.Ext()]
}

// IsPDF reports whether the artifact is a PDF document.
func (r Ref) IsPDF() bool {
	return r.Ext() == "pdf"
}

var audioExts = map[string]bool{
	"mp3": true, "wav": true, "m4a": true, "webm": true, "ogg": true,
}

// allowedExts is the upload allowlist: documents, code, data files, and
// audio recordings.
var allowedExts = map[string]bool{
	"pdf": true, "txt": true, "doc": true, "docx": true,
	"py": true, "js": true, "java": true, "cpp": true, "c": true,
	"csv": true, "xlsx": true, "xls": true, "md": true, "json": true,
	"mp3": true, "wav": true, "m4a": true, "webm": true, "ogg": true,
}

// Allowed reports whether the filename's extension is accepted for
// upload.
func Allowed(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
	return ext != "" && allowedExts[ext]
}

// textLikeExts can be read verbatim into a prompt.
var textLikeExts = map[string]bool{
	"txt": true, "md": true, "csv": true, "json": true, "xml": true,
	"py": true, "js": true, "ts": true, "tsx": true, "jsx": true,
	"java": true, "c": true, "cpp": true, "cs": true, "go": true,
	"html": true, "css": true, "yml": true, "yaml": true,
	"ini": true, "cfg": true, "toml": true, "sql": true,
}

// maxContentRunes bounds how much extracted text is inlined into a
// prompt before truncation.
const maxContentRunes = 80000

const truncationNotice = "\n\n[内容过长，已截断，仅分析前面部分]"
