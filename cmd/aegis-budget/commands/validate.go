package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/samijaber1/aegis-budget/internal/slo"
)

// ErrInvalidDefinitions is returned when at least one definition fails validation.
var ErrInvalidDefinitions = errors.New("invalid SLO definitions")

type validateCommand struct {
	path string
}

// NewValidateCommand returns the validate command.
func NewValidateCommand(app *kingpin.Application) Command {
	c := &validateCommand{}
	cmd := app.Command("validate", "Validates SLO definition files.")
	cmd.Arg("path", "SLO definition file or directory of definitions.").Required().StringVar(&c.path)

	return c
}

func (validateCommand) Name() string { return "validate" }
func (v validateCommand) Run(ctx context.Context, config RootConfig) error {
	info, err := os.Stat(v.path)
	if err != nil {
		return fmt.Errorf("could not read %q: %w", v.path, err)
	}

	var (
		count int
		errs  []slo.ValidationError
	)
	if info.IsDir() {
		var defs []slo.DefinitionWithFile
		defs, errs = slo.LoadFromDirectory(v.path)
		count = len(defs)
	} else {
		_, err := slo.Load(v.path)
		var verrs slo.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			errs = verrs
		case err != nil:
			errs = []slo.ValidationError{{File: v.path, Message: err.Error()}}
		default:
			count = 1
		}
	}

	if len(errs) == 0 {
		fmt.Fprintf(config.Stdout, "✓ All SLO files are valid (%d)\n", count)
		return nil
	}

	printValidationErrors(config, errs)
	return ErrInvalidDefinitions
}

// printValidationErrors prints errors grouped by file.
func printValidationErrors(config RootConfig, errs []slo.ValidationError) {
	byFile := make(map[string][]slo.ValidationError)
	for _, err := range errs {
		byFile[err.File] = append(byFile[err.File], err)
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	fmt.Fprintf(config.Stderr, "✗ Validation failed with %d error(s):\n\n", len(errs))
	for _, file := range files {
		for _, err := range byFile[file] {
			if err.Path != "" {
				fmt.Fprintf(config.Stderr, "%s: %s: %s\n", filepath.Base(err.File), err.Path, err.Message)
			} else {
				fmt.Fprintf(config.Stderr, "%s: %s\n", filepath.Base(err.File), err.Message)
			}
		}
	}
}
