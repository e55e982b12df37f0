package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/paulpham157/neptune-fetcher/internal/infra/storage"
	"github.com/paulpham157/neptune-fetcher/internal/retrieval"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List saved tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ctx, stop := startFetcher()
		defer stop()

		infos, err := app.ListTables(ctx)
		if err != nil {
			return err
		}
		return writeTableInfos(cmd.OutOrStdout(), infos)
	},
}

var deleteTableCmd = &cobra.Command{
	Use:   "delete-table [name]",
	Short: "Delete a saved table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ctx, stop := startFetcher()
		defer stop()

		if err := app.Store().DeleteTable(ctx, args[0]); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted table %s\n", args[0])
		return nil
	},
}

var purgeCacheCmd = &cobra.Command{
	Use:   "purge-cache",
	Short: "Drop cached API responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ctx, stop := startFetcher()
		defer stop()

		n, err := app.PurgeCache(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d cached pages\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tablesCmd, deleteTableCmd, purgeCacheCmd)
}

func writeRunInfos(out io.Writer, runs []retrieval.RunInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "SYS_ID\tLABEL")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", r.Run.SysID, r.Label)
	}
	return w.Flush()
}

func writeTableInfos(out io.Writer, infos []storage.TableInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "NAME\tROWS\tCOLUMNS\tNESTED\tCREATED")

	for _, info := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%t\t%s\n",
			info.Name, info.Rows, info.Columns, info.Nested, info.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
