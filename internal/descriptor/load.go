package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile reads a descriptor document and decodes it into the untyped field
// map Parse consumes. The format is chosen by extension: .json is JSON,
// everything else is TOML (the hand-edited format).
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return DecodeJSON(data)
	}
	return DecodeTOML(data)
}

// DecodeTOML decodes a TOML descriptor document into a field map.
func DecodeTOML(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := toml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode toml descriptor: %w", err)
	}
	return fields, nil
}

// DecodeJSON decodes a JSON descriptor document into a field map. Useful for
// descriptors emitted by build systems rather than written by hand.
func DecodeJSON(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode json descriptor: %w", err)
	}
	return fields, nil
}
