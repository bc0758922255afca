// Package file loads topics and pipelines from a directory of YAML documents laid out as
// <root>/<tenant>/topics/*.yaml and <root>/<tenant>/pipelines/*.yaml, and reloads a tenant
// when its files change.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	yamlv3 "gopkg.in/yaml.v3"
	"sigs.k8s.io/yaml"

	"github.com/topicflow/topicflow/pkg/logger"
	"github.com/topicflow/topicflow/pkg/meta"
	"github.com/topicflow/topicflow/pkg/meta/memory"
	"github.com/topicflow/topicflow/pkg/model"
)

const (
	topicsDir    = "topics"
	pipelinesDir = "pipelines"

	defaultDebounce = 200 * time.Millisecond
)

type Option func(*Meta)

func WithLogger(l logger.Logger) Option {
	return func(m *Meta) {
		m.logger = l
	}
}

// WithDebounce sets how long the watcher waits for a burst of file events to settle before
// reloading the tenants they touched.
func WithDebounce(d time.Duration) Option {
	return func(m *Meta) {
		m.debounce = d
	}
}

// Meta is a read only meta.Reader over a YAML directory.
type Meta struct {
	root     string
	logger   logger.Logger
	debounce time.Duration
	schemas  *memory.Meta
}

var (
	_ meta.Reader = (*Meta)(nil)
	_ meta.Lister = (*Meta)(nil)
)

// New loads every tenant under root. The hooks run whenever a tenant is reloaded by Watch.
func New(root string, hooks []meta.InvalidationHook, opts ...Option) (*Meta, error) {
	m := &Meta{
		root:     root,
		logger:   logger.NewNoopLogger(),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(m)
	}

	// loading runs before the hooks are registered: nothing is cached yet
	m.schemas = memory.New()
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read meta directory '%s': %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := m.load(entry.Name()); err != nil {
			return nil, err
		}
	}
	for _, hook := range hooks {
		m.schemas.OnChange(hook)
	}
	return m, nil
}

func (m *Meta) FindTopic(ctx context.Context, tenantID, idOrName string) (*model.Topic, error) {
	return m.schemas.FindTopic(ctx, tenantID, idOrName)
}

func (m *Meta) FindPipeline(ctx context.Context, tenantID, pipelineID string) (*model.Pipeline, error) {
	return m.schemas.FindPipeline(ctx, tenantID, pipelineID)
}

func (m *Meta) FindPipelinesByTopic(ctx context.Context, tenantID, topicID string) ([]*model.Pipeline, error) {
	return m.schemas.FindPipelinesByTopic(ctx, tenantID, topicID)
}

func (m *Meta) ListTenants(ctx context.Context) ([]string, error) {
	return m.schemas.ListTenants(ctx)
}

func (m *Meta) ListPipelines(ctx context.Context, tenantID string) ([]*model.Pipeline, error) {
	return m.schemas.ListPipelines(ctx, tenantID)
}

func readDocuments[T any](dir string, fill func(doc *T, path string) error) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var docs []*T
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc := new(T)
		if err := decodeStrict(data, doc); err != nil {
			return nil, fmt.Errorf("failed to parse '%s': %w", path, err)
		}
		if err := fill(doc, path); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// decodeStrict reads data as YAML 1.2, so keys such as `on` stay strings, and rejects fields
// the document type does not declare.
func decodeStrict(data []byte, doc any) error {
	var tree any
	if err := yamlv3.Unmarshal(data, &tree); err != nil {
		return err
	}
	if tree == nil {
		return nil
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(js, doc)
}

func tenantOf(declared *string, tenantID, path string) error {
	switch *declared {
	case "":
		*declared = tenantID
	case tenantID:
	default:
		return fmt.Errorf("'%s' declares tenant '%s' but lives under tenant '%s'", path, *declared, tenantID)
	}
	return nil
}

// load reads the documents of one tenant and replaces whatever was loaded before.
func (m *Meta) load(tenantID string) error {
	dir := filepath.Join(m.root, tenantID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		m.schemas.RemoveTenant(tenantID)
		return nil
	}

	topics, err := readDocuments(filepath.Join(dir, topicsDir), func(t *model.Topic, path string) error {
		if t.TopicID == "" {
			return fmt.Errorf("'%s' has no topicId", path)
		}
		return tenantOf(&t.TenantID, tenantID, path)
	})
	if err != nil {
		return err
	}
	pipelines, err := readDocuments(filepath.Join(dir, pipelinesDir), func(p *model.Pipeline, path string) error {
		if p.PipelineID == "" {
			return fmt.Errorf("'%s' has no pipelineId", path)
		}
		return tenantOf(&p.TenantID, tenantID, path)
	})
	if err != nil {
		return err
	}

	m.schemas.ReplaceTenant(tenantID, topics, pipelines)
	return nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// tenantFor returns the tenant directory an event path belongs to.
func (m *Meta) tenantFor(path string) (string, bool) {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return strings.Split(rel, string(filepath.Separator))[0], true
}

func (m *Meta) addDirs(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// Watch reloads tenants as their files change until ctx is done. A tenant whose files fail
// to load keeps its previous schemas.
func (m *Meta) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := m.addDirs(w, m.root); err != nil {
		return fmt.Errorf("failed to watch '%s': %w", m.root, err)
	}

	ticker := time.NewTicker(m.debounce)
	defer ticker.Stop()

	dirty := map[string]time.Time{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := m.addDirs(w, event.Name); err != nil {
						m.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			tenantID, ok := m.tenantFor(event.Name)
			if !ok {
				continue
			}
			dirty[tenantID] = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("meta watcher error", zap.Error(err))

		case now := <-ticker.C:
			var ready []string
			for tenantID, at := range dirty {
				if now.Sub(at) >= m.debounce {
					ready = append(ready, tenantID)
					delete(dirty, tenantID)
				}
			}

			for _, tenantID := range ready {
				if err := m.load(tenantID); err != nil {
					m.logger.Error("failed to reload tenant schemas", zap.String("tenant_id", tenantID), zap.Error(err))
					continue
				}
				m.logger.Info("reloaded tenant schemas", zap.String("tenant_id", tenantID))
			}
		}
	}
}
