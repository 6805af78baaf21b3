package statement

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cleared-dev/walletsync/internal/model"
)

// Parser converts a wallet statement export into a Statement.
type Parser interface {
	Parse(r io.Reader) (*model.Statement, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&VenmoParser{})
	return r
}

// FileSource serves a statement previously downloaded to disk. The file is
// taken as-is: its balances and entries already describe one window.
type FileSource struct {
	Path   string
	Parser Parser
}

// NewFileSource returns a FileSource for path using the named format.
func NewFileSource(path, format string) (*FileSource, error) {
	p := DefaultRegistry().Get(format)
	if p == nil {
		return nil, fmt.Errorf("unknown statement format %q", format)
	}
	return &FileSource{Path: path, Parser: p}, nil
}

// FetchStatement parses the file. profileID and window are not consulted.
func (s *FileSource) FetchStatement(_ context.Context, _ string, _ model.SyncWindow) (*model.Statement, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening statement: %w", err)
	}
	defer f.Close()

	stmt, err := s.Parser.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing statement %s: %w", s.Path, err)
	}
	return stmt, nil
}
