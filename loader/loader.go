package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/ragstudio/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// Loader turns files into documents, choosing a parser by file extension.
// Unknown extensions are read as plain text.
type Loader struct {
	pdfPassword string
	csvColumns  []string
	logger      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithPDFPassword sets the password used to open encrypted PDFs.
func WithPDFPassword(password string) Option {
	return func(l *Loader) error {
		l.pdfPassword = password
		return nil
	}
}

// WithCSVColumns limits CSV rows to the named columns.
func WithCSVColumns(columns ...string) Option {
	return func(l *Loader) error {
		l.csvColumns = columns
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// New creates a Loader.
func New(opts ...Option) (*Loader, error) {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "loader")
	return l, nil
}

// Kind names the parser used for a path.
type Kind string

const (
	KindPDF      Kind = "pdf"
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
	KindCSV      Kind = "csv"
	KindText     Kind = "text"
)

// KindOf returns the parser kind for path, based on its extension.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return KindPDF
	case ".md", ".markdown":
		return KindMarkdown
	case ".html", ".htm":
		return KindHTML
	case ".csv":
		return KindCSV
	default:
		return KindText
	}
}

// Load reads path and returns its documents. PDFs yield one document per
// page with a 1-based page number; other formats yield documents without
// pages. Source is always path.
func (l *Loader) Load(ctx context.Context, path string) ([]core.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, path, err)
	}
	defer f.Close()

	kind := KindOf(path)
	docs, err := l.load(ctx, kind, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, path, err)
	}

	out := make([]core.Document, 0, len(docs))
	for _, d := range docs {
		text := d.PageContent
		if kind == KindMarkdown {
			text = StripMarkdown(text)
		}
		out = append(out, core.Document{
			Text:   text,
			Source: path,
			Page:   pageOf(kind, d),
		})
	}

	l.logger.Debug("loaded file", "path", path, "kind", kind, "documents", len(out))
	return out, nil
}

func (l *Loader) load(ctx context.Context, kind Kind, f *os.File) ([]schema.Document, error) {
	var dl documentloaders.Loader
	switch kind {
	case KindPDF:
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		var opts []documentloaders.PDFOptions
		if l.pdfPassword != "" {
			opts = append(opts, documentloaders.WithPassword(l.pdfPassword))
		}
		dl = documentloaders.NewPDF(f, info.Size(), opts...)
	case KindHTML:
		dl = documentloaders.NewHTML(f)
	case KindCSV:
		dl = documentloaders.NewCSV(f, l.csvColumns...)
	default:
		dl = documentloaders.NewText(f)
	}
	return dl.Load(ctx)
}

func pageOf(kind Kind, d schema.Document) *int {
	if kind != KindPDF {
		return nil
	}
	if page, ok := d.Metadata["page"].(int); ok && page > 0 {
		return core.IntPtr(page)
	}
	return nil
}

var defaultLoader = &Loader{logger: slog.Default().With("component", "loader")}

// Load reads path with a default Loader.
func Load(ctx context.Context, path string) ([]core.Document, error) {
	return defaultLoader.Load(ctx, path)
}
