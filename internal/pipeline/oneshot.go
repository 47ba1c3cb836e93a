package pipeline

import (
	"fmt"
	"path/filepath"

	"quickestimate/internal/extract"
)

// ExtractorForFile picks the extractor for a local file by extension.
// Photos go to images, which may be nil when no model is configured.
func ExtractorForFile(path string, images extract.Extractor) (extract.Extractor, error) {
	name := filepath.Base(path)
	if extract.IsImage("", name) {
		if images == nil {
			return nil, ErrNoImageExtractor
		}
		return images, nil
	}
	if ex, ok := extract.ForContentType("", name); ok {
		return ex, nil
	}
	return nil, fmt.Errorf("unsupported input file: %s", name)
}
