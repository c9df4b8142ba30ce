package cli

import (
	"fmt"

	"github.com/glorpus-work/cdse/pkg/odata"
	"github.com/spf13/cobra"
)

// NewHitsCmd creates the hits command.
func NewHitsCmd() *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "hits",
		Short: "Count products matching a search without fetching them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			query, err := flags.toQuery()
			if err != nil {
				return err
			}
			search, err := odata.NewProductSearch(newCatalogueClient(cfg), query)
			if err != nil {
				return err
			}
			hits, err := search.Hits(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(hits)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
