package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"yqhp/perf-gate/pkg/types"
)

// LoadThresholds reads and validates a threshold configuration file.
func LoadThresholds(path string) (*types.ThresholdConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取阈值配置失败: %w", err)
	}
	return ParseThresholds(data)
}

// ParseThresholds parses and validates a threshold configuration.
// Unknown keys are rejected so that a misspelt bound is never silently ignored.
func ParseThresholds(data []byte) (*types.ThresholdConfig, error) {
	tc := &types.ThresholdConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(tc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("解析阈值配置失败: %w", err)
	}
	if err := NewValidator().ValidateThresholds(tc); err != nil {
		return nil, err
	}
	return tc, nil
}
