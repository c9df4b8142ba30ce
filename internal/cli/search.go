package cli

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/cdse/pkg/odata"
	"github.com/spf13/cobra"
)

type searchFlags struct {
	collection    string
	name          string
	productID     string
	from          string
	to            string
	publishedFrom string
	publishedTo   string
	area          string
	orderBy       string
	order         string
	expand        string
	limit         int
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.collection, "collection", "c", "", "collection name (e.g. SENTINEL-2)")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "exact product name")
	cmd.Flags().StringVar(&f.productID, "id", "", "product id")
	cmd.Flags().StringVar(&f.from, "from", "", "sensing start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "sensing end (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.publishedFrom, "published-from", "", "publication start")
	cmd.Flags().StringVar(&f.publishedTo, "published-to", "", "publication end")
	cmd.Flags().StringVar(&f.area, "area", "", "WKT geometry in EPSG:4326")
	cmd.Flags().StringVar(&f.orderBy, "order-by", "", "order by property")
	cmd.Flags().StringVar(&f.order, "order", "", "asc or desc")
	cmd.Flags().StringVar(&f.expand, "expand", "", "expand option (Assets, Attributes, Locations)")
	cmd.Flags().IntVarP(&f.limit, "limit", "l", 25, "maximum number of results (0 for all)")
}

func (f *searchFlags) toQuery() (odata.ProductQuery, error) {
	query := odata.ProductQuery{
		Collection: f.collection,
		Name:       f.name,
		ProductID:  f.productID,
		Area:       f.area,
		OrderBy:    f.orderBy,
		Order:      f.order,
		Expand:     f.expand,
	}

	var err error
	if query.SensingFrom, err = parseTime(f.from); err != nil {
		return query, err
	}
	if query.SensingTo, err = parseTime(f.to); err != nil {
		return query, err
	}
	if query.PublishedFrom, err = parseTime(f.publishedFrom); err != nil {
		return query, err
	}
	if query.PublishedTo, err = parseTime(f.publishedTo); err != nil {
		return query, err
	}
	return query, nil
}

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	flags := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the catalogue for products",
		Long: `Search the CDSE catalogue for products matching collection, name,
sensing/publication time windows and an optional area of interest.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runSearch(cmd *cobra.Command, flags *searchFlags) error {
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

	products, err := search.Get(cmd.Context(), flags.limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(products) == 0 {
		fmt.Println("No products found")
		return nil
	}

	fmt.Printf("%-38s %-12s %-8s %s\n", "ID", "SIZE", "ONLINE", "NAME")
	fmt.Println(strings.Repeat("-", 100))
	for _, p := range products {
		fmt.Printf("%-38s %-12d %-8t %s\n", p.ID, p.ContentLength, p.Online, p.Name)
	}
	fmt.Printf("\n%d product(s)\n", len(products))
	return nil
}
