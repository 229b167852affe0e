// Package registry manages external integration (MCP) endpoints: CRUD
// with persistence and a connectivity probe gating every write.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/classtide/omnitutor/pkg/kv"
)

// ErrNotFound is returned for unknown integration ids.
var ErrNotFound = errors.New("registry: MCP 不存在")

// ErrEmptyName rejects entries without a name.
var ErrEmptyName = errors.New("registry: 名称不能为空")

// ProbeError is a failed connectivity check. Reason is user-facing.
type ProbeError struct {
	Reason string
}

func (e *ProbeError) Error() string {
	return "registry: 校验失败：" + e.Reason
}

// Entry is one registered integration endpoint.
type Entry struct {
	ID          string         `msgpack:"id" json:"id"`
	Name        string         `msgpack:"name" json:"name"`
	Description string         `msgpack:"description" json:"description"`
	Enabled     bool           `msgpack:"enabled" json:"enabled"`
	Config      map[string]any `msgpack:"config" json:"config"`
	CreatedAt   time.Time      `msgpack:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `msgpack:"updated_at" json:"updated_at,omitzero"`
}

const (
	keyspace          = "mcp"
	defaultProbeLimit = 10 * time.Second
	probeBodyLimit    = 200
)

// Registry persists entries in a kv.Store and probes endpoints before
// accepting them.
type Registry struct {
	kv     kv.Store
	client *http.Client
	now    func() time.Time
}

// New creates a registry. A nil client uses http.DefaultClient.
func New(backend kv.Store, client *http.Client) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	return &Registry{kv: backend, client: client, now: time.Now}
}

// probe issues a bounded GET against config.url and demands a 2xx.
func (r *Registry) probe(ctx context.Context, config map[string]any) error {
	url, _ := config["url"].(string)
	if url == "" {
		return &ProbeError{Reason: "缺少 url 字段"}
	}

	timeout := defaultProbeLimit
	if secs, ok := config["timeout"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ProbeError{Reason: fmt.Sprintf("网络异常: %v", err)}
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return &ProbeError{Reason: fmt.Sprintf("网络异常: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, probeBodyLimit))
		return &ProbeError{Reason: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body)}
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// Create validates, probes, and persists a new entry.
func (r *Registry) Create(ctx context.Context, name, description string, enabled bool, config map[string]any) (*Entry, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = map[string]any{}
	}
	if err := r.probe(ctx, config); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Enabled:     enabled,
		Config:      config,
		CreatedAt:   r.now(),
	}
	if err := r.put(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Update replaces an entry's fields after re-validating and re-probing.
func (r *Registry) Update(ctx context.Context, id, name, description string, enabled bool, config map[string]any) (*Entry, error) {
	entry, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name, err = validateName(name)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = map[string]any{}
	}
	if err := r.probe(ctx, config); err != nil {
		return nil, err
	}

	entry.Name = name
	entry.Description = strings.TrimSpace(description)
	entry.Enabled = enabled
	entry.Config = config
	entry.UpdatedAt = r.now()
	if err := r.put(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// SetEnabled toggles an entry without re-probing it.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (*Entry, error) {
	entry, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	entry.Enabled = enabled
	entry.UpdatedAt = r.now()
	if err := r.put(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get loads one entry. Returns ErrNotFound for unknown ids.
func (r *Registry) Get(ctx context.Context, id string) (*Entry, error) {
	raw, err := r.kv.Get(ctx, kv.Key{keyspace, id})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get %s: %w", id, err)
	}
	var entry Entry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("registry: decode %s: %w", id, err)
	}
	return &entry, nil
}

// List returns all entries, oldest first.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	for item, err := range r.kv.List(ctx, kv.Key{keyspace}) {
		if err != nil {
			return nil, fmt.Errorf("registry: list: %w", err)
		}
		var entry Entry
		if err := msgpack.Unmarshal(item.Value, &entry); err != nil {
			return nil, fmt.Errorf("registry: decode %s: %w", item.Key, err)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes an entry. Returns ErrNotFound for unknown ids.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.kv.Delete(ctx, kv.Key{keyspace, id})
}

func (r *Registry) put(ctx context.Context, entry *Entry) error {
	raw, err := msgpack.Marshal(entry)
	if err != nil {
		return fmt.Errorf("registry: encode %s: %w", entry.ID, err)
	}
	return r.kv.Set(ctx, kv.Key{keyspace, entry.ID}, raw)
}
