package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/poiesic/itk/core"
)

const (
	companyColumn = "company"
	urlColumn     = "url"
)

var (
	// ErrMissingColumn indicates the CSV header lacks a required column.
	ErrMissingColumn = errors.New("registry: missing column")

	// ErrMalformed indicates the CSV could not be parsed.
	ErrMalformed = errors.New("registry: malformed csv")
)

// Registry is the immutable set of entities loaded for one cycle.
type Registry struct {
	entities []core.EntityRecord
	owners   map[string]string // normalized URL -> entity name
}

// NormalizeURL trims whitespace and lower-cases the scheme and host.
// Path and query are kept as-is. Strings that do not parse as URLs are
// only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// New builds a registry from entity records. URLs are unique after
// normalization: a repeated URL is kept once, and when it is listed under two
// entities the first one keeps it and the conflict is logged.
func New(records []core.EntityRecord, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "registry")

	r := &Registry{owners: make(map[string]string)}
	index := make(map[string]int)
	for _, rec := range records {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			logger.Warn("skipping entity without a name", "urls", len(rec.URLs))
			continue
		}
		for _, raw := range rec.URLs {
			u := NormalizeURL(raw)
			if u == "" {
				continue
			}
			if owner, ok := r.owners[u]; ok {
				if owner != name {
					logger.Warn("url registered to more than one entity", "url", u, "kept", owner, "ignored", name)
				}
				continue
			}
			r.owners[u] = name

			i, ok := index[name]
			if !ok {
				i = len(r.entities)
				index[name] = i
				r.entities = append(r.entities, core.EntityRecord{Name: name})
			}
			r.entities[i].URLs = append(r.entities[i].URLs, raw)
		}
	}
	return r
}

// Parse reads a registry CSV. The header is matched case-insensitively and
// extra columns are ignored.
func Parse(r io.Reader, logger *slog.Logger) (*Registry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(nil, logger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	companyIdx, urlIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case companyColumn:
			companyIdx = i
		case urlColumn:
			urlIdx = i
		}
	}
	if companyIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, "Company")
	}
	if urlIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, "URL")
	}

	var records []core.EntityRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if companyIdx >= len(row) || urlIdx >= len(row) {
			continue
		}
		if strings.TrimSpace(row[urlIdx]) == "" {
			continue
		}
		records = append(records, core.EntityRecord{
			Name: row[companyIdx],
			URLs: []string{strings.TrimSpace(row[urlIdx])},
		})
	}
	return New(records, logger), nil
}

// Load reads the registry CSV at path.
func Load(path string, logger *slog.Logger) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, logger)
}

// LoadOrEmpty reads the registry at path. A missing or malformed file is
// logged and yields an empty registry.
func LoadOrEmpty(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	reg, err := Load(path, logger)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("registry file not found, using empty registry", "path", path)
		} else {
			logger.Warn("failed to load registry, using empty registry", "path", path, "err", err)
		}
		return New(nil, logger)
	}
	return reg
}

// Entities returns the entities in file order.
func (r *Registry) Entities() []core.EntityRecord {
	return r.entities
}

// URLs returns every registered URL, in file order, without duplicates.
func (r *Registry) URLs() []string {
	var urls []string
	for _, e := range r.entities {
		urls = append(urls, e.URLs...)
	}
	return urls
}

// Owner returns the entity registered for a URL.
func (r *Registry) Owner(rawURL string) (string, bool) {
	name, ok := r.owners[NormalizeURL(rawURL)]
	return name, ok
}

// Len returns the number of entities.
func (r *Registry) Len() int {
	return len(r.entities)
}
