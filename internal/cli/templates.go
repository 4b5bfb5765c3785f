package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/qflow/internal/catalog"
	"github.com/roach88/qflow/internal/ir"
)

// CatalogEntry describes a built-in template.
type CatalogEntry struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Steps     int    `json:"steps"`
	Questions int    `json:"questions"`
	Hash      string `json:"hash"`
}

// NewTemplatesCommand creates the templates command.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "templates",
		Short:         "List the built-in template catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplates(rootOpts, cmd)
		},
	}
}

func runTemplates(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tpls, err := catalog.All()
	if err != nil {
		return formatter.fail(ErrCodeGeneric, err.Error(), nil)
	}

	entries := make([]CatalogEntry, 0, len(tpls))
	for _, tpl := range tpls {
		entries = append(entries, CatalogEntry{
			ID:        tpl.ID,
			Category:  tpl.Category,
			Name:      tpl.Name,
			Version:   tpl.Version,
			Steps:     len(tpl.Steps),
			Questions: tpl.QuestionCount(),
			Hash:      ir.MustTemplateHash(tpl),
		})
	}

	if formatter.isJSON() {
		return formatter.Success(entries)
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tVERSION\tSTEPS\tQUESTIONS\tNAME")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", e.ID, e.Category, e.Version, e.Steps, e.Questions, e.Name)
	}
	return tw.Flush()
}
