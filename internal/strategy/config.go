package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Params 是策略实例的自由参数表，带类型安全的取值辅助。
type Params map[string]any

func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return def
	}
}

func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return def
	}
}

func (p Params) Floats(key string) []float64 {
	v, ok := p[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		switch t := item.(type) {
		case float64:
			out = append(out, t)
		case int:
			out = append(out, float64(t))
		case int64:
			out = append(out, float64(t))
		}
	}
	return out
}

// Definition 描述一个策略实例：name 唯一；type 指向已注册的构建器。
type Definition struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Enabled *bool  `yaml:"enabled"`
	Params  Params `yaml:"params"`
}

// IsEnabled 默认启用；显式 enabled: false 才关闭。
func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// FileConfig 映射 strategies.yaml。
type FileConfig struct {
	Strategies []Definition `yaml:"strategies"`
}

func readStrategyFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read strategy config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse strategy config failed: %w", err)
	}
	return cfg, nil
}

func compileSchema(raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// validateParams 用构建器的 schema 校验实例参数。
func validateParams(schema *jsonschema.Schema, params Params) error {
	if schema == nil {
		return nil
	}
	// jsonschema 只接受 JSON 原生类型，yaml 的 int 需要过一遍编解码。
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return schema.Validate(doc)
}
