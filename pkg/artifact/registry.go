package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/classtide/omnitutor/pkg/kv"
	"github.com/classtide/omnitutor/pkg/storage"
)

const keyspace = "artifact"

// Registry owns artifact metadata and payloads.
type Registry struct {
	kv    kv.Store
	files storage.FileStore
	now   func() time.Time
}

// NewRegistry creates an artifact registry over the given backends.
func NewRegistry(backend kv.Store, files storage.FileStore) *Registry {
	return &Registry{kv: backend, files: files, now: time.Now}
}

// Add stores a new artifact payload and registers its metadata,
// returning the generated reference.
func (g *Registry) Add(ctx context.Context, name string, payload io.Reader) (*Ref, error) {
	ref := &Ref{
		ID:         uuid.NewString(),
		Name:       name,
		UploadedAt: g.now(),
	}
	ref.Path = "artifacts/" + ref.ID + "/" + name

	wc, err := g.files.Write(ctx, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("artifact: store %s: %w", name, err)
	}
	if _, err := io.Copy(wc, payload); err != nil {
		wc.Close()
		return nil, fmt.Errorf("artifact: store %s: %w", name, err)
	}
	if err := wc.Close(); err != nil {
		return nil, fmt.Errorf("artifact: store %s: %w", name, err)
	}

	if err := g.put(ctx, ref); err != nil {
		g.files.Delete(ctx, ref.Path)
		return nil, err
	}
	return ref, nil
}

func (g *Registry) put(ctx context.Context, ref *Ref) error {
	raw, err := msgpack.Marshal(ref)
	if err != nil {
		return fmt.Errorf("artifact: encode %s: %w", ref.ID, err)
	}
	return g.kv.Set(ctx, kv.Key{keyspace, ref.ID}, raw)
}

// Get resolves an artifact id. Returns ErrNotFound for unknown or
// deleted ids.
func (g *Registry) Get(ctx context.Context, id string) (*Ref, error) {
	raw, err := g.kv.Get(ctx, kv.Key{keyspace, id})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifact: get %s: %w", id, err)
	}
	var ref Ref
	if err := msgpack.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("artifact: decode %s: %w", id, err)
	}
	return &ref, nil
}

// List returns all artifacts, oldest upload first.
func (g *Registry) List(ctx context.Context) ([]Ref, error) {
	var out []Ref
	for entry, err := range g.kv.List(ctx, kv.Key{keyspace}) {
		if err != nil {
			return nil, fmt.Errorf("artifact: list: %w", err)
		}
		var ref Ref
		if err := msgpack.Unmarshal(entry.Value, &ref); err != nil {
			return nil, fmt.Errorf("artifact: decode %s: %w", entry.Key, err)
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

// Delete removes an artifact's payload and metadata. Conversation turns
// referencing the id are left untouched; later lookups fail with
// ErrNotFound.
func (g *Registry) Delete(ctx context.Context, id string) error {
	ref, err := g.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := g.files.Delete(ctx, ref.Path); err != nil {
		return fmt.Errorf("artifact: delete payload %s: %w", id, err)
	}
	return g.kv.Delete(ctx, kv.Key{keyspace, id})
}

// Clear removes every artifact and its payload.
func (g *Registry) Clear(ctx context.Context) error {
	refs, err := g.List(ctx)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := g.Delete(ctx, ref.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// Open returns the raw payload stream, used for audio transcription.
func (g *Registry) Open(ctx context.Context, id string) (*Ref, io.ReadCloser, error) {
	ref, err := g.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := g.files.Read(ctx, ref.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact: open %s: %w", id, err)
	}
	return ref, rc, nil
}

// Content extracts the artifact's text for prompt inlining. Text-like
// files are read verbatim with a length cap; formats that cannot be
// decoded inline yield an advisory message instead of an error so the
// conversation can continue.
func (g *Registry) Content(ctx context.Context, id string) (string, error) {
	ref, err := g.Get(ctx, id)
	if err != nil {
		return "", err
	}

	ext := ref.Ext()
	switch {
	case textLikeExts[ext]:
		raw, err := storage.ReadAll(ctx, g.files, ref.Path)
		if err != nil {
			return "", fmt.Errorf("artifact: read %s: %w", id, err)
		}
		text := []rune(string(raw))
		if len(text) > maxContentRunes {
			return string(text[:maxContentRunes]) + truncationNotice, nil
		}
		return string(text), nil
	case ext == "pdf":
		return "PDF 文件暂不支持原文解析。建议导出为文本（.txt/.md）后再上传。", nil
	case ext == "doc" || ext == "docx" || ext == "xlsx" || ext == "xls" ||
		ext == "ppt" || ext == "pptx":
		return "当前文件类型暂不支持原文解析。建议导出为文本（.txt/.md/.csv/.json/代码）后再上传。", nil
	default:
		return fmt.Sprintf("暂不支持的文件类型：.%s。建议转换为文本后再试。", ext), nil
	}
}
