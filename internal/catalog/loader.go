// Package catalog loads product records from a directory of JSON documents
// and serves them from an immutable, atomically swapped snapshot.
package catalog

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/swarm-handbook/editor/model"
)

// Record is one catalog entry together with where it came from.
type Record struct {
	Product    *model.Product
	SourceFile string
	Checksum   string
}

// Loader scans a directory for *.json product documents, parses them, and
// computes SHA-256 checksums.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a Loader. A nil logger discards warnings.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// LoadDir recursively scans dir for *.json files in lexical order and parses
// each into a Record. Files that fail to parse are skipped and counted. When
// two files carry the same product_id the later one wins. An unreadable
// directory is a LOAD_ERROR.
func (l *Loader) LoadDir(dir string) ([]Record, int, error) {
	var (
		records []Record
		skipped int
		index   = make(map[string]int)
	)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".json" {
			return nil
		}

		rec, err := l.LoadFile(path)
		if err != nil {
			skipped++
			l.logger.Warn("skipping catalog record",
				zap.String("file", path),
				zap.Error(err),
			)
			return nil
		}

		id := rec.Product.ProductID
		if i, dup := index[id]; dup {
			l.logger.Warn("duplicate product_id in catalog, later file wins",
				zap.String("product_id", id),
				zap.String("previous", records[i].SourceFile),
				zap.String("file", path),
			)
			records[i] = rec
			return nil
		}
		index[id] = len(records)
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, skipped, model.NewLoadError(fmt.Sprintf("scanning catalog directory %s: %v", dir, err))
	}

	return records, skipped, nil
}

// LoadFile loads and parses a single product document.
func (l *Loader) LoadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("reading %s: %w", path, err)
	}

	p, err := model.ParseProduct(data)
	if err != nil {
		return Record{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if p.ProductID == "" {
		return Record{}, fmt.Errorf("parsing %s: product_id is empty", path)
	}

	return Record{
		Product:    p,
		SourceFile: path,
		Checksum:   fmt.Sprintf("%x", sha256.Sum256(data)),
	}, nil
}

// Reload reads dir with l and installs the result into c. On error the
// current snapshot is kept. It returns the number of records installed and
// the number of files skipped.
func Reload(l *Loader, dir string, c *Catalog) (loaded, skipped int, err error) {
	records, skipped, err := l.LoadDir(dir)
	if err != nil {
		return 0, skipped, err
	}
	c.Replace(records)
	return len(records), skipped, nil
}
