package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/glorpus-work/cdse/pkg/config"
	"github.com/glorpus-work/cdse/pkg/opensearch"
	"github.com/spf13/cobra"
)

type opensearchFlags struct {
	collection    string
	name          string
	productID     string
	from          string
	to            string
	cloudCoverMax int
	productType   string
	instrument    string
	sensorMode    string
	sortParam     string
	sortOrder     string
	limit         int
}

func (f *opensearchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.collection, "collection", "c", "", "collection name (e.g. Sentinel2)")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "product identifier substring")
	cmd.Flags().StringVar(&f.productID, "id", "", "product id")
	cmd.Flags().StringVar(&f.from, "from", "", "sensing start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "sensing end (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.cloudCoverMax, "cloud-cover", -1, "maximum cloud cover percentage")
	cmd.Flags().StringVar(&f.productType, "product-type", "", "product type (e.g. L2A)")
	cmd.Flags().StringVar(&f.instrument, "instrument", "", "instrument (e.g. MSI)")
	cmd.Flags().StringVar(&f.sensorMode, "sensor-mode", "", "sensor mode (e.g. IW)")
	cmd.Flags().StringVar(&f.sortParam, "sort", "", "feature attribute to sort on")
	cmd.Flags().StringVar(&f.sortOrder, "order", "", "ascending or descending")
	cmd.Flags().IntVarP(&f.limit, "limit", "l", 25, "maximum number of results (0 for all)")
	_ = cmd.MarkFlagRequired("collection")
}

func (f *opensearchFlags) toQuery() (opensearch.Query, error) {
	query := opensearch.Query{
		Collection:  f.collection,
		Name:        f.name,
		ProductID:   f.productID,
		ProductType: f.productType,
		Instrument:  f.instrument,
		SensorMode:  f.sensorMode,
		SortParam:   f.sortParam,
		SortOrder:   f.sortOrder,
	}
	if f.cloudCoverMax >= 0 {
		query.CloudCover = &[2]int{0, f.cloudCoverMax}
	}

	var err error
	if query.SensingFrom, err = parseTime(f.from); err != nil {
		return query, err
	}
	if query.SensingTo, err = parseTime(f.to); err != nil {
		return query, err
	}
	return query, nil
}

// NewOpenSearchCmd creates the opensearch command.
func NewOpenSearchCmd() *cobra.Command {
	flags := &opensearchFlags{}
	cmd := &cobra.Command{
		Use:   "opensearch",
		Short: "Search the OpenSearch endpoint for products",
		Long: `Search the CDSE OpenSearch endpoint. It complements the OData catalogue
with cloud cover and instrument filters and returns GeoJSON features.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOpenSearch(cmd, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

// newOpenSearchClient creates an OpenSearch client from the config.
func newOpenSearchClient(cfg *config.Config) *opensearch.Client {
	opts := []opensearch.ClientOption{
		opensearch.WithHTTPClient(&http.Client{Timeout: cfg.Settings.HTTPTimeout}),
	}
	if cfg.Endpoints.OpenSearchURL != "" {
		opts = append(opts, opensearch.WithBaseURL(cfg.Endpoints.OpenSearchURL))
	}
	return opensearch.NewClient(opts...)
}

func runOpenSearch(cmd *cobra.Command, flags *opensearchFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	query, err := flags.toQuery()
	if err != nil {
		return err
	}

	search, err := opensearch.NewSearch(newOpenSearchClient(cfg), query)
	if err != nil {
		return err
	}

	features, err := search.Get(cmd.Context(), flags.limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(features) == 0 {
		fmt.Println("No products found")
		return nil
	}

	fmt.Printf("%-38s %-8s %s\n", "ID", "TYPE", "TITLE")
	fmt.Println(strings.Repeat("-", 100))
	for _, f := range features {
		fmt.Printf("%-38s %-8s %s\n", f.ID, f.Properties.ProductType, f.Properties.Title)
	}
	fmt.Printf("\n%d product(s)\n", len(features))
	return nil
}
