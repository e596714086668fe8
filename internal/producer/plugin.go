package producer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/MoAdelArar/claude-dev-manager-sub001/internal/role"
)

const pluginFuncName = "Produce"

// PluginFunc is the signature a plugin script must export from package main.
// feature is the feature name and inputs maps artifact types to content.
type PluginFunc func(feature, stage, role string, inputs map[string]string) (string, error)

// PluginProducer runs an interpreted Go script and parses its raw response.
type PluginProducer struct {
	role   string
	path   string
	parser Parser

	mu sync.Mutex
	fn PluginFunc
}

// PluginPath returns where the plugin script for roleID lives under dir.
func PluginPath(dir, roleID string) string {
	return filepath.Join(dir, roleID+".go")
}

// LoadPlugin interprets the script at path once and binds its Produce function.
func LoadPlugin(r role.Role, path string, parser Parser) (*PluginProducer, error) {
	if parser == nil {
		parser = MarkdownParser{}
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("producer: read plugin %s: %w", path, err)
	}
	if strings.TrimSpace(string(code)) == "" {
		return nil, fmt.Errorf("producer: plugin %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("producer: plugin %s: load stdlib: %w", path, err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("producer: interpret %s: %w", path, err)
	}
	value, err := i.Eval(pluginFuncName)
	if err != nil {
		return nil, fmt.Errorf("producer: %s must define %s: %w", path, pluginFuncName, err)
	}
	if !value.IsValid() || !value.CanInterface() {
		return nil, fmt.Errorf("producer: %s: %s is not callable", path, pluginFuncName)
	}
	fn, ok := value.Interface().(func(string, string, string, map[string]string) (string, error))
	if !ok {
		return nil, fmt.Errorf("producer: %s: %s must be func(feature, stage, role string, inputs map[string]string) (string, error)", path, pluginFuncName)
	}
	return &PluginProducer{role: r.ID, path: path, parser: parser, fn: fn}, nil
}

// Produce implements Producer. The interpreter cannot be interrupted, so a
// cancelled context returns immediately while the call finishes in the background.
func (p *PluginProducer) Produce(ctx context.Context, sc StageContext) (Output, error) {
	inputs := make(map[string]string, len(sc.Inputs))
	for _, a := range sc.Inputs {
		inputs[string(a.Type)] = a.Content
	}
	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		raw, err := p.call(sc, inputs)
		done <- result{raw: raw, err: err}
	}()
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return Output{}, fmt.Errorf("producer: plugin %s: %w", p.role, res.err)
		}
		out, err := p.parser.Parse(res.raw)
		if err != nil && !errors.Is(err, ErrEmptyResponse) {
			return Output{}, fmt.Errorf("producer: plugin %s: %w", p.role, err)
		}
		return out, nil
	}
}

func (p *PluginProducer) call(sc StageContext, inputs map[string]string) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.fn(sc.Feature.Name, sc.Stage.ID, p.role, inputs)
}
