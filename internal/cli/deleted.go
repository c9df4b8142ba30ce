package cli

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/cdse/pkg/odata"
	"github.com/spf13/cobra"
)

// NewDeletedCmd creates the deleted command.
func NewDeletedCmd() *cobra.Command {
	var (
		collection string
		name       string
		cause      string
		from       string
		to         string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "deleted",
		Short: "Search products removed from the catalogue",
		Long: fmt.Sprintf(`Search the DeletedProducts endpoint. Known deletion causes:
  %s`, strings.Join(odata.DeletionCauses, "\n  ")),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			query := odata.DeletedProductQuery{
				Collection:    collection,
				Name:          name,
				DeletionCause: cause,
			}
			if query.DeletedFrom, err = parseTime(from); err != nil {
				return err
			}
			if query.DeletedTo, err = parseTime(to); err != nil {
				return err
			}

			search, err := odata.NewDeletedProductSearch(newCatalogueClient(cfg), query)
			if err != nil {
				return err
			}
			deleted, err := search.Get(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				fmt.Println("No deleted products found")
				return nil
			}

			fmt.Printf("%-38s %-26s %s\n", "ID", "DELETED", "CAUSE")
			fmt.Println(strings.Repeat("-", 90))
			for _, d := range deleted {
				fmt.Printf("%-38s %-26s %s\n", d.ID, d.DeletionDate.Format("2006-01-02T15:04:05Z"), d.DeletionCause)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "collection name")
	cmd.Flags().StringVarP(&name, "name", "n", "", "exact product name")
	cmd.Flags().StringVar(&cause, "cause", "", "deletion cause")
	cmd.Flags().StringVar(&from, "from", "", "deletion date start")
	cmd.Flags().StringVar(&to, "to", "", "deletion date end")
	cmd.Flags().IntVarP(&limit, "limit", "l", 25, "maximum number of results (0 for all)")
	return cmd
}
