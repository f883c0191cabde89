package cfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ReadCredential returns the string field of a JSON credentials document. A
// missing file yields an empty secret so that only the source needing it fails.
func ReadCredential(path, field string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}

	value, _ := doc[field].(string)
	return strings.TrimSpace(value), nil
}
