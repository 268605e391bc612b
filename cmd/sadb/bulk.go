package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sambigeara/sadb/pkg/batch"
	"github.com/sambigeara/sadb/pkg/sacsv"
)

func newBulkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk <file.csv|->",
		Short: "Create or update security associations from a CSV file",
		Long: "Apply every row of a CSV file in order. Failed rows are reported and do not stop the rows after them.\n" +
			"Rows without a type column use --type.",
		Args: cobra.ExactArgs(1),
		RunE: runBulk,
	}
	addTypeFlag(cmd, "all")
	cmd.Flags().String("op", "create", "Batch operation (create|update)")
	cmd.Flags().Bool("force", false, "Let create rows replace existing SAs")
	return cmd
}

func runBulk(cmd *cobra.Command, args []string) error {
	ft, err := frameType(cmd, true)
	if err != nil {
		return err
	}
	op, _ := cmd.Flags().GetString("op")
	kind, err := batch.ParseKind(op)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open bulk file: %w", err)
		}
		defer f.Close()
		in = f
	}

	rows, err := sacsv.Read(in)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	rep := batch.Apply(cmd.Context(), e.router, rows, kind, batch.Options{Type: ft, Force: force})
	out := cmd.OutOrStdout()
	for _, res := range rep.Results {
		if res.Err != nil {
			fmt.Fprintf(out, "line %d: failed: %v\n", res.Line, res.Err)
			continue
		}
		fmt.Fprintf(out, "line %d: %s %s (%s)\n", res.Line, kind, res.SA.Identity(), res.SA.State)
	}
	fmt.Fprintf(out, "%d of %d rows applied\n", len(rep.Results)-rep.Failed(), len(rep.Results))
	return rep.Err()
}
