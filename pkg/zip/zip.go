// Package zip bundles generated assets into a single in-memory archive
// for download responses.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
)

// Asset is one file destined for a bundle.
type Asset struct {
	Filename string
	Data     []byte
}

// Bundle writes the assets into a zip archive. Assets sharing a
// filename get a numeric suffix before the extension so none overwrite
// another inside the archive.
func Bundle(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]int, len(assets))
	for _, asset := range assets {
		base := asset.Filename
		if base == "" {
			base = "asset"
		}
		name := base
		if n := seen[base]; n > 0 {
			ext := path.Ext(base)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), n, ext)
		}
		seen[base]++

		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip: add %s: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
