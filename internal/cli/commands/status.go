package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hivesolutions/colony-plugins-sub002/internal/cli/ui"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/migrate"
)

// ErrOutOfSync is returned by status --check when a table differs from the model
var ErrOutOfSync = errors.New("database is out of sync with the entity model")

var (
	statusVerbose bool
	statusCheck   bool
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [entity...]",
		Short: "Show the differences between the model and the database",
		Long: `Compare the declared entity types with the tables of the database
without changing anything. Each type is listed with the action sync would
take for it.`,
		RunE: runStatus,
	}

	cmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "list every mismatch")
	cmd.Flags().BoolVar(&statusCheck, "check", false, "fail when any type is out of sync")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	types, err := env.types(cmd, args)
	if err != nil {
		return err
	}

	sync := env.engine.Synchronizer()
	diffs := make([]*migrate.Diff, 0, len(types))
	for _, t := range types {
		diff, err := sync.Diff(cmd.Context(), env.conn, t)
		if err != nil {
			return err
		}
		diffs = append(diffs, diff)
	}

	out := cmd.OutOrStdout()
	options := env.conn.Options()
	ui.Header(out, "Schema status", noColor)
	info := ui.NewDetails(out, noColor)
	info.Add("Database", options.FilePath)
	info.Add("Driver", options.DriverName())
	info.Add("Generator", env.config.Generator.Store)
	info.Add("Entities", strconv.Itoa(len(diffs)))
	info.Render()
	fmt.Fprintln(out)

	pending := ui.RenderStatus(out, diffs, ui.StatusOptions{NoColor: noColor, Verbose: statusVerbose})

	if pending > 0 && statusCheck {
		return fmt.Errorf("%w: %d entity types pending", ErrOutOfSync, pending)
	}
	return nil
}
