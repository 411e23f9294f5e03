// Package listfile reads and writes blocklist documents. Structured
// documents (JSON, YAML, TOML) carry a top-level "blockedSites" array; plain
// documents hold one entry per line with '#' comments.
package listfile

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"

	"github.com/haukened/dontvisit/internal/blocker/common/log"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// ExportVersion is stamped into exported documents.
const ExportVersion = "1.0.0"

const keySites = "blockedSites"

// Format names a document encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTOML  Format = "toml"
	FormatPlain Format = "plain"
)

// FormatFromPath picks a format by file extension. Unknown extensions are plain.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatPlain
	}
}

// ParseFormat accepts a format name or a media type such as
// "application/json". Empty input sniffs nothing and yields plain.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch s {
	case "json", "application/json":
		return FormatJSON, nil
	case "yaml", "yml", "application/yaml", "application/x-yaml", "text/yaml":
		return FormatYAML, nil
	case "toml", "application/toml":
		return FormatTOML, nil
	case "", "plain", "txt", "text/plain":
		return FormatPlain, nil
	}
	return "", fmt.Errorf("%w: unsupported list format %q", domain.ErrMalformedInput, s)
}

// Sniff guesses the format of data: a leading '{' is JSON, anything else plain.
func Sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\uFEFF")), " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatPlain
}

// Result is the outcome of reading a list document.
type Result struct {
	// Sites holds the valid entries in first-seen order without duplicates.
	Sites []string
	// Invalid aggregates rejected entries; nil when every entry was accepted.
	Invalid error
}

// Validator decides whether a raw entry is acceptable.
type Validator func(site string) bool

// Reader parses list documents.
type Reader struct {
	valid  Validator
	logger log.Logger
}

// NewReader returns a Reader. A nil validator accepts every non-empty entry.
func NewReader(valid Validator, logger log.Logger) *Reader {
	if valid == nil {
		valid = func(string) bool { return true }
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Reader{valid: valid, logger: logger}
}

// Load reads the file at path, choosing the parser by extension.
func (r *Reader) Load(path string) (Result, error) {
	format := FormatFromPath(path)
	if format == FormatPlain {
		data, err := readFile(path)
		if err != nil {
			return Result{}, err
		}
		return r.parsePlain(data, path)
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parserFor(format)); err != nil {
		return Result{}, fmt.Errorf("%w: failed to load list file %s: %v", domain.ErrMalformedInput, path, err)
	}
	return r.fromKoanf(k, path)
}

// Parse reads data in the given format.
func (r *Reader) Parse(data []byte, format Format) (Result, error) {
	if format == FormatPlain {
		return r.parsePlain(data, "inline")
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parserFor(format)); err != nil {
		return Result{}, fmt.Errorf("%w: failed to parse %s list: %v", domain.ErrMalformedInput, format, err)
	}
	return r.fromKoanf(k, string(format))
}

func (r *Reader) fromKoanf(k *koanf.Koanf, source string) (Result, error) {
	if !k.Exists(keySites) {
		return Result{}, fmt.Errorf("%w: %s missing %q", domain.ErrMalformedInput, source, keySites)
	}
	var raw []any
	switch v := k.Get(keySites).(type) {
	case []any:
		raw = v
	case []string:
		for _, s := range v {
			raw = append(raw, s)
		}
	default:
		return Result{}, fmt.Errorf("%w: %s: %q must be a list", domain.ErrMalformedInput, source, keySites)
	}
	c := newCollector(r)
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			c.reject(fmt.Sprintf("item %d", i+1), fmt.Sprint(v))
			continue
		}
		c.offer(fmt.Sprintf("item %d", i+1), s)
	}
	r.logger.Debug(map[string]any{"source": source, "count": len(c.sites)}, "list_parsed")
	return c.result(), nil
}

func parserFor(f Format) koanf.Parser {
	switch f {
	case FormatYAML:
		return yaml.Parser()
	case FormatTOML:
		return toml.Parser()
	default:
		return json.Parser()
	}
}

// collector applies validation and first-seen de-duplication.
type collector struct {
	r       *Reader
	seen    map[string]struct{}
	sites   []string
	invalid *multierror.Error
}

func newCollector(r *Reader) *collector {
	return &collector{r: r, seen: make(map[string]struct{}), sites: make([]string, 0, 64)}
}

func (c *collector) offer(where, raw string) {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
	if s == "" {
		return
	}
	if !c.r.valid(s) {
		c.reject(where, s)
		return
	}
	if _, dup := c.seen[s]; dup {
		return
	}
	c.seen[s] = struct{}{}
	c.sites = append(c.sites, s)
}

func (c *collector) reject(where, raw string) {
	c.invalid = multierror.Append(c.invalid, fmt.Errorf("%w: %s: %q", domain.ErrMalformedInput, where, raw))
}

func (c *collector) result() Result {
	return Result{Sites: c.sites, Invalid: c.invalid.ErrorOrNil()}
}

// Export renders sites as the JSON export document.
func Export(sites []string, exported time.Time) ([]byte, error) {
	if sites == nil {
		sites = []string{}
	}
	k := koanf.New(".")
	doc := map[string]any{
		keySites:     sites,
		"exportDate": exported.UTC().Format(time.RFC3339Nano),
		"version":    ExportVersion,
	}
	if err := k.Load(confmap.Provider(doc, "."), nil); err != nil {
		return nil, err
	}
	return k.Marshal(json.Parser())
}
