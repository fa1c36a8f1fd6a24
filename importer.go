package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/pomodo/pkg/logger"
	"github.com/harrisonrobin/pomodo/pkg/model"
	"github.com/harrisonrobin/pomodo/pkg/orgmode"
	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/taskwarrior"
)

func (a *app) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create tasks from Taskwarrior or Org files",
	}
	cmd.AddCommand(a.importTaskwarriorCmd(), a.importOrgCmd())
	return cmd
}

func (a *app) importTaskwarriorCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "taskwarrior [FILE|-] [-- FILTER...]",
		Short: "Import a `task export` JSON dump",
		Long: "Reads `task export` output from FILE or stdin. With --live, runs\n" +
			"`task export` itself and passes the remaining arguments as a filter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := taskwarrior.NewClient()
			var tasks []taskwarrior.Task
			var err error
			switch {
			case live:
				tasks, err = client.GetTasks(cmd.Context(), args)
			case len(args) == 0 || args[0] == "-":
				tasks, err = client.ParseTasks(cmd.InOrStdin())
			default:
				var f *os.File
				f, err = os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				tasks, err = client.ParseTasks(f)
			}
			if err != nil {
				return err
			}

			var imports []model.Import
			for _, t := range tasks {
				if taskwarrior.Skipped(t) {
					continue
				}
				imports = append(imports, taskwarrior.ToImport(t))
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			return reportImport(a.out, importAll(cmd.Context(), st, imports))
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "run `task export` instead of reading a dump")
	return cmd
}

func (a *app) importOrgCmd() *cobra.Command {
	var tag string
	cmd := &cobra.Command{
		Use:   "org FILE...",
		Short: "Import TODO and DONE headings from Org files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			imports, err := orgmode.ParseFiles(args)
			if err != nil {
				return err
			}
			if tag != "" {
				t, err := model.ParseTag(tag)
				if err != nil {
					return err
				}
				imports = orgmode.FilterTasks(imports, t)
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			return reportImport(a.out, importAll(cmd.Context(), st, imports))
		},
	}
	cmd.Flags().StringVarP(&tag, "tag", "t", "", "only headings carrying this tag")
	return cmd
}

type importResult struct {
	created int
	errs    []error
}

// importAll creates each import. A failed item does not stop the rest and
// leaves nothing behind.
func importAll(ctx context.Context, st *store.Store, imports []model.Import) importResult {
	var res importResult
	for _, imp := range imports {
		id, err := st.Create(ctx, imp.Draft)
		if err == nil && imp.Completed {
			if err = st.SetCompleted(ctx, id, true); err != nil {
				if derr := st.Delete(ctx, id); derr != nil {
					err = errors.Join(err, fmt.Errorf("remove partial import %s: %w", id, derr))
				}
			}
		}
		if err != nil {
			res.errs = append(res.errs, fmt.Errorf("%s: %w", imp.Source, err))
			continue
		}
		logger.Debug("imported task", "source", imp.Source, "id", id)
		res.created++
	}
	return res
}

func reportImport(w io.Writer, res importResult) error {
	fmt.Fprintf(w, "imported %d task(s)", res.created)
	if len(res.errs) > 0 {
		fmt.Fprintf(w, ", %d failed", len(res.errs))
	}
	fmt.Fprintln(w)
	return errors.Join(res.errs...)
}
