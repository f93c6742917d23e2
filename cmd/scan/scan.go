// Package scan implements the scan command: a synchronous sitewide scan
// with the broken links printed as a table when it completes.
package scan

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/linkscan/cmd/common"
	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/domain"
	internalscan "github.com/jonesrussell/linkscan/internal/scan"
)

// Command returns the scan command for use in the root command.
func Command() *cobra.Command {
	var verbosity int

	cmd := &cobra.Command{
		Use:   "scan [site-id]",
		Short: "Scan a site for broken links",
		Long: `Runs a full synchronous scan of the site's live pages, following
same-site links, and prints the broken links found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}

			engine, err := common.NewEngine(deps, nil)
			if err != nil {
				return fmt.Errorf("failed to construct engine: %w", err)
			}
			defer engine.Close()

			return runScan(cmd.Context(), engine, args[0], verbosity)
		},
	}

	cmd.Flags().IntVarP(&verbosity, "verbosity", "v", 1, "output verbosity (0-3)")

	return cmd
}

// runScan runs the synchronous scan and prints the results.
func runScan(ctx context.Context, engine *common.Engine, siteID string, verbosity int) error {
	finished, err := engine.Service.Start(ctx, siteID, internalscan.StartOptions{
		RunSync:   true,
		Verbosity: verbosity,
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	counts, err := engine.Links.Counts(ctx, finished.ID)
	if err != nil {
		return fmt.Errorf("failed to count results: %w", err)
	}

	broken, err := engine.Links.ListByScan(ctx, finished.ID, database.ListFilters{
		State:   database.LinkStateBroken,
		GroupBy: "page_id",
	})
	if err != nil {
		return fmt.Errorf("failed to list broken links: %w", err)
	}

	if verbosity > 0 && len(broken) > 0 {
		renderBrokenLinks(broken)
	}

	fmt.Println(counts.Result())
	return nil
}

// renderBrokenLinks prints the broken links as a table grouped by page.
func renderBrokenLinks(links []*domain.ScanLink) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"Page", "URL", "Status", "Error"})

	for _, link := range links {
		page := ""
		if link.PageSlug != nil {
			page = *link.PageSlug
		} else if link.PageID != nil {
			page = *link.PageID
		}

		status := ""
		if link.StatusCode != nil {
			status = fmt.Sprintf("%d", *link.StatusCode)
		}

		errText := ""
		if link.ErrorText != nil {
			errText = *link.ErrorText
		}

		t.AppendRow(table.Row{page, link.URL, status, errText})
	}

	t.Render()
}
