package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
)

// ArchiveEntry is one image destined for the order zip.
type ArchiveEntry struct {
	Identifier string
	Filename   string
	Data       []byte
}

// PackageOrder writes all of an order's images into a single zip keyed by
// order id, one folder per identifier, and stores it. Returns the artifact
// URL.
func PackageOrder(ctx context.Context, store ObjectStorage, orderID string, entries []ArchiveEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("nothing to package for order %s", orderID)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		name := sanitizeFolder(e.Identifier) + "/" + e.Filename
		w, err := zw.Create(name)
		if err != nil {
			return "", fmt.Errorf("failed to create zip entry %s: %w", name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return "", fmt.Errorf("failed to write zip entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize zip: %w", err)
	}

	key := fmt.Sprintf("orders/%s.zip", orderID)
	return store.Put(ctx, key, buf.Bytes(), "application/zip")
}

func sanitizeFolder(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	s := replacer.Replace(strings.TrimSpace(name))
	if s == "" {
		return "unknown"
	}
	return s
}
