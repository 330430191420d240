package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/samijaber1/aegis-budget/cmd/aegis-budget/commands"
	"github.com/samijaber1/aegis-budget/internal/logging"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := kingpin.New("aegis-budget", "Error budget and burn rate reports.")
	app.DefaultEnvars()
	config := commands.NewRootConfig(app)

	// Setup commands (registers flags).
	reportCmd := commands.NewReportCommand(app)
	dashboardCmd := commands.NewDashboardCommand(app)
	collectCmd := commands.NewCollectCommand(app)
	validateCmd := commands.NewValidateCommand(app)

	cmds := map[string]commands.Command{
		reportCmd.Name():    reportCmd,
		dashboardCmd.Name(): dashboardCmd,
		collectCmd.Name():   collectCmd,
		validateCmd.Name():  validateCmd,
	}

	// Parse commandline.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set up global dependencies.
	config.Stdout = stdout
	config.Stderr = stderr
	config.Logger, err = getLogger(*config)
	if err != nil {
		return err
	}
	defer func() { _ = config.Logger.Sync() }()

	// Execute command.
	err = cmds[cmdName].Run(ctx, *config)
	if err != nil {
		return fmt.Errorf("%q command failed: %w", cmdName, err)
	}

	return nil
}

// getLogger returns the application logger. Reports go to stdout so the
// logger stays quiet unless debug is enabled.
func getLogger(config commands.RootConfig) (*zap.Logger, error) {
	if config.NoLog {
		return zap.NewNop(), nil
	}

	level := "warn"
	if config.Debug {
		level = "debug"
	}
	return logging.New(level, config.LoggerType)
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
