// Package task loads named pipeline definitions and runs them.
package task

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// StageRef names a registered stage and its options.
type StageRef struct {
	Name    string         `json:"name" yaml:"name" schema:"required,minLength=1" description:"Registered stage name"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty" description:"Stage options"`
}

// Definition is one runnable task.
type Definition struct {
	Name                string   `json:"name" yaml:"name" schema:"required,minLength=1" description:"Unique task name"`
	Description         string   `json:"description,omitempty" yaml:"description,omitempty" description:"Task description"`
	Batch               bool     `json:"batch,omitempty" yaml:"batch,omitempty" schema:"default=false" description:"Stream the source in chunks, one transaction per chunk"`
	NotificationContext string   `json:"notification_context,omitempty" yaml:"notification_context,omitempty" description:"Introduction of the change digest e-mail"`
	Extractor           StageRef `json:"extractor" yaml:"extractor" schema:"required" description:"Extractor binding"`
	Transformer         StageRef `json:"transformer" yaml:"transformer" schema:"required" description:"Transformer binding"`
	Loader              StageRef `json:"loader" yaml:"loader" schema:"required" description:"Loader binding"`
}

func (d *Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if d.Extractor.Name == "" {
		errs = append(errs, errors.New("extractor.name is required"))
	}
	if d.Transformer.Name == "" {
		errs = append(errs, errors.New("transformer.name is required"))
	}
	if d.Loader.Name == "" {
		errs = append(errs, errors.New("loader.name is required"))
	}
	return errors.Join(errs...)
}

// Decode reads every YAML document in r as a Definition.
func Decode(r io.Reader) ([]Definition, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var defs []Definition
	for {
		var d Definition
		err := decoder.Decode(&d)
		if errors.Is(err, io.EOF) {
			return defs, nil
		}
		if err != nil {
			return nil, err
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("task %q: %w", d.Name, err)
		}
		defs = append(defs, d)
	}
}

// LoadPath loads definitions from a YAML file or from every .yaml and .yml
// file of a directory. Task names must be unique.
func LoadPath(path string) ([]Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks directory: %w", err)
		}
		files = files[:0]
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		slices.Sort(files)
	}

	var all []Definition
	seen := make(map[string]string)
	for _, f := range files {
		defs, err := decodeFile(f)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			if prev, ok := seen[d.Name]; ok {
				return nil, fmt.Errorf("task %q defined in both %s and %s", d.Name, prev, f)
			}
			seen[d.Name] = f
			all = append(all, d)
		}
	}
	return all, nil
}

func decodeFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	defs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return defs, nil
}
