package vectorstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// chromem stores each collection in a directory named by an 8-char hex hash,
// with its name and metadata in 00000000.gob (or .gob.gz when compressed).
var collectionDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

const (
	quarantineDir       = ".quarantine"
	chromemMetadataStem = "00000000"
)

// QuarantinedCollections counts collection directories moved aside on open.
var QuarantinedCollections = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "policyrag",
		Subsystem: "vectorstore",
		Name:      "quarantined_collections_total",
		Help:      "Total number of corrupt chromem collections quarantined on open",
	},
)

// NewResilientChromemDB opens a persistent chromem DB. A collection directory
// holding documents but no metadata file makes chromem refuse to load the
// whole DB; such directories are moved to .quarantine and the open is retried
// once. Any other load error is returned unchanged.
func NewResilientChromemDB(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	corrupt, findErr := findCorruptCollections(path, logger)
	if findErr != nil {
		logger.Error("failed to scan for corrupt collections", zap.Error(findErr))
		return nil, err
	}
	if len(corrupt) == 0 {
		return nil, err
	}

	moved, qErr := quarantine(path, corrupt, logger)
	if qErr != nil {
		return nil, fmt.Errorf("quarantining corrupt collections: %w", qErr)
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB after quarantine: %w", err)
	}

	logger.Warn("chromem DB opened after quarantine", zap.Strings("quarantined", moved))
	return db, nil
}

// findCorruptCollections lists collection directories that hold document
// files but no metadata file.
func findCorruptCollections(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var corrupt []string
	for _, entry := range entries {
		if !entry.IsDir() || !collectionDirPattern.MatchString(entry.Name()) {
			continue
		}

		files, err := os.ReadDir(filepath.Join(path, entry.Name()))
		if err != nil {
			logger.Warn("failed to read collection directory",
				zap.String("collection_dir", entry.Name()),
				zap.Error(err),
			)
			continue
		}

		var hasMetadata, hasDocuments bool
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := f.Name()
			switch {
			case name == chromemMetadataStem+".gob" || name == chromemMetadataStem+".gob.gz":
				hasMetadata = true
			case strings.HasSuffix(name, ".gob") || strings.HasSuffix(name, ".gob.gz"):
				hasDocuments = true
			}
		}
		if hasDocuments && !hasMetadata {
			corrupt = append(corrupt, entry.Name())
		}
	}
	return corrupt, nil
}

// quarantine moves each named collection directory under path/.quarantine,
// prefixed with the current unix time so repeated quarantines never collide.
func quarantine(path string, dirs []string, logger *zap.Logger) ([]string, error) {
	target := filepath.Join(path, quarantineDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, err
	}

	stamp := time.Now().Unix()
	var moved []string
	for _, dir := range dirs {
		src := filepath.Join(path, dir)
		dst := filepath.Join(target, fmt.Sprintf("%d-%s", stamp, dir))
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("moving %s: %w", dir, err)
		}
		logger.Warn("quarantined corrupt collection",
			zap.String("from", src),
			zap.String("to", dst),
		)
		QuarantinedCollections.Inc()
		moved = append(moved, dir)
	}
	return moved, nil
}
