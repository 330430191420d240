package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samijaber1/aegis-budget/cmd/aegis-budget/commands"
)

const (
	testSLO     = "../../internal/slo/testdata/valid/redirector.yaml"
	testFixture = "../../internal/adapter/synthetic/testdata/fast-burn.json"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), append([]string{"aegis-budget", "--no-log"}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func syntheticArgs(t *testing.T, cmd ...string) []string {
	t.Helper()

	args := []string{
		"--slo-config", testSLO,
		"--source", "synthetic",
		"--fixture", testFixture,
		"--db", filepath.Join(t.TempDir(), "history.db"),
	}
	return append(args, cmd...)
}

func TestReport(t *testing.T) {
	stdout, _, err := run(t, syntheticArgs(t, "report")...)
	require.NoError(t, err)

	assert.Contains(t, stdout, "BURN RATE REPORT - ERROR BUDGET")
	assert.Contains(t, stdout, "WINDOW 1H")
	assert.Contains(t, stdout, "RECOMMENDATIONS")
}

func TestReport_JSON(t *testing.T) {
	stdout, _, err := run(t, syntheticArgs(t, "report", "--output", "json")...)
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
	assert.Contains(t, decoded, "1h")
	assert.Contains(t, decoded["1h"], "burn_rate")
}

func TestReport_InvalidLookback(t *testing.T) {
	_, _, err := run(t, syntheticArgs(t, "report", "--lookback-hours", "0")...)
	assert.Error(t, err)
}

func TestCollectThenDashboard(t *testing.T) {
	args := syntheticArgs(t)

	stdout, _, err := run(t, append(args, "collect")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "BURN RATE REPORT - ERROR BUDGET")

	stdout, _, err = run(t, append(args, "dashboard", "--no-collect")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ERROR BUDGET DASHBOARD")
	assert.NotContains(t, stdout, "No data recorded yet")
}

func TestDashboard_Empty(t *testing.T) {
	stdout, _, err := run(t, syntheticArgs(t, "dashboard", "--no-collect")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No data recorded yet")
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		path      string
		expErr    bool
		expStdout string
		expStderr string
	}{
		"Valid directory should pass.": {
			path:      "../../internal/slo/testdata/valid",
			expStdout: "✓ All SLO files are valid (2)",
		},
		"Valid file should pass.": {
			path:      testSLO,
			expStdout: "✓ All SLO files are valid (1)",
		},
		"Invalid directory should fail grouped by file.": {
			path:      "../../internal/slo/testdata/invalid",
			expErr:    true,
			expStderr: "bad-severity.yaml: ",
		},
		"Missing path should fail.": {
			path:   "does-not-exist",
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stdout, stderr, err := run(t, "validate", test.path)

			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, stdout, test.expStdout)
			assert.Contains(t, stderr, test.expStderr)
		})
	}
}

func TestValidate_ReturnsSentinel(t *testing.T) {
	_, _, err := run(t, "validate", "../../internal/slo/testdata/invalid")
	assert.True(t, errors.Is(err, commands.ErrInvalidDefinitions))
}

func TestRun_UnknownCommand(t *testing.T) {
	_, _, err := run(t, "unknown")
	assert.Error(t, err)
}
