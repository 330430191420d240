package slo

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads, validates and parses the definition at path. Any problem is a
// configuration error: callers must not continue with a partial definition.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read SLO definition: %w", err)
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	def, errs := validator.Parse(path, data)
	if len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return def, nil
}

// Parse validates data against the schema, decodes it and applies semantic rules.
// The document may be YAML or JSON.
func (v *Validator) Parse(file string, data []byte) (*Definition, []ValidationError) {
	if errs := v.ValidateDocument(file, data); len(errs) > 0 {
		return nil, errs
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, []ValidationError{{File: file, Message: fmt.Sprintf("failed to decode definition: %v", err)}}
	}

	if errs := ValidateDefinition(file, &def); len(errs) > 0 {
		return nil, errs
	}

	return &def, nil
}

// LoadFromDirectory discovers and loads all definition files from a directory
func LoadFromDirectory(dirPath string) ([]DefinitionWithFile, []ValidationError) {
	var defs []DefinitionWithFile
	var errors []ValidationError

	files, err := discoverFiles(dirPath)
	if err != nil {
		errors = append(errors, ValidationError{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil, errors
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, []ValidationError{{File: dirPath, Message: err.Error()}}
	}

	services := make(map[string]string)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			errors = append(errors, ValidationError{File: file, Message: fmt.Sprintf("failed to read file: %v", err)})
			continue
		}

		def, errs := validator.Parse(file, data)
		if len(errs) > 0 {
			errors = append(errors, errs...)
			continue
		}

		if prev, exists := services[def.Service]; exists {
			errors = append(errors, ValidationError{
				File:    file,
				Path:    "service",
				Message: fmt.Sprintf("duplicate service %q (also in %s)", def.Service, filepath.Base(prev)),
			})
			continue
		}
		services[def.Service] = file

		defs = append(defs, DefinitionWithFile{Definition: def, File: file})
	}

	return defs, errors
}

// discoverFiles finds all YAML and JSON files in a directory
func discoverFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml", ".json":
			files = append(files, path)
		}
		return nil
	})

	return files, err
}
