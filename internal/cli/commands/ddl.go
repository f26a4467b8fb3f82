package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDDLCommand creates the ddl command
func NewDDLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ddl [entity...]",
		Short: "Print the table definitions of the entity model",
		Long: `Print the statements creating the table, the id index and the join
tables of each entity type, in dependency order. A join table shared by
both sides of a relation is printed once. Nothing is executed.`,
		RunE: runDDL,
	}
}

func runDDL(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	types, err := env.types(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sync := env.engine.Synchronizer()
	seen := make(map[string]bool)
	for i, t := range types {
		definitions, err := sync.Definitions(t)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "-- %s\n", t.Name)
		for _, d := range definitions {
			if seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			fmt.Fprintf(out, "%s;\n", d.Statement)
		}
	}
	return nil
}
