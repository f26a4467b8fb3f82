package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivesolutions/colony-plugins-sub002/internal/cli/ui"
	"github.com/hivesolutions/colony-plugins-sub002/internal/orm/migrate"
)

// NewSyncCommand creates the sync command
func NewSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [entity...]",
		Short: "Create or update the tables of the entity model",
		Long: `Bring the database in line with the declared entity types.

Missing tables are created, missing plain columns are added in place and
tables whose column types or foreign keys changed are recreated with their
rows copied over. Join tables of many-to-many relations are repaired.

With no arguments every concrete entity type is synchronized.`,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	ctx := cmd.Context()
	types, err := env.types(cmd, args)
	if err != nil {
		return err
	}

	sync := env.engine.Synchronizer()
	diffs := make([]*migrate.Diff, 0, len(types))
	for _, t := range types {
		diff, err := sync.Diff(ctx, env.conn, t)
		if err != nil {
			return err
		}
		diffs = append(diffs, diff)
	}

	out := cmd.OutOrStdout()
	for _, d := range diffs {
		if d.NeedsRecreate() {
			fmt.Fprint(cmd.ErrOrStderr(), ui.Warning(fmt.Sprintf(
				"table %s of %s is recreated, its rows are copied into the new definition", d.Type.TableName(), d.Type.Name), noColor))
		}
	}
	if err := env.engine.CreateDefinitions(ctx, types...); err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.SyncError(err.Error(), noColor))
		return err
	}

	pending := ui.RenderStatus(out, diffs, ui.StatusOptions{NoColor: noColor})
	fmt.Fprintln(out)
	if pending == 0 {
		ui.WriteSuccess(out, "schema already up to date", noColor)
		return nil
	}
	ui.WriteSuccess(out, fmt.Sprintf("synchronized %d of %d entity types", pending, len(diffs)), noColor)
	return nil
}
