package params

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads the YAML consensus parameters at path. Fields absent from
// the file keep their default values.
func LoadFile(path string) (*Genesis, error) {
	genesis := DefaultGenesis()
	if path == "" {
		return genesis, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("params: file %s not found", path)
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML consensus parameters over the defaults and validates
// the result.
func Parse(data []byte) (*Genesis, error) {
	genesis := DefaultGenesis()
	var raw struct {
		System *SysParams  `yaml:"system"`
		CDP    []CdpParams `yaml:"cdp"`
	}
	raw.System = &genesis.System
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("params: decode yaml: %w", err)
	}
	if raw.CDP != nil {
		genesis.CDP = raw.CDP
	}
	if err := genesis.Validate(); err != nil {
		return nil, err
	}
	return genesis, nil
}
