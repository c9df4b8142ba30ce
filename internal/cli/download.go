package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glorpus-work/cdse/pkg/archive"
	"github.com/glorpus-work/cdse/pkg/config"
	"github.com/glorpus-work/cdse/pkg/download"
	"github.com/glorpus-work/cdse/pkg/hook"
	"github.com/glorpus-work/cdse/pkg/logger"
	"github.com/glorpus-work/cdse/pkg/odata"
	"github.com/glorpus-work/cdse/pkg/s3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type downloadFlags struct {
	search   searchFlags
	dir      string
	noVerify bool
	extract  bool
	useS3    bool
	preHook  string
	postHook string
}

// NewDownloadCmd creates the download command.
func NewDownloadCmd() *cobra.Command {
	flags := &downloadFlags{}
	cmd := &cobra.Command{
		Use:   "download [product-id...]",
		Short: "Download products",
		Long: `Download products by id, or every product matched by the given search
flags. At most four transfers run at a time, a limit imposed by the remote
service. Downloads are verified against the checksums in the product
descriptor when available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, flags, args)
		},
	}

	flags.search.register(cmd)
	cmd.Flags().StringVarP(&flags.dir, "dir", "d", "", "destination directory (default from config)")
	cmd.Flags().BoolVar(&flags.noVerify, "no-verify", false, "skip checksum verification")
	cmd.Flags().BoolVar(&flags.extract, "extract", false, "extract downloaded product archives")
	cmd.Flags().BoolVar(&flags.useS3, "s3", false, "fetch through the eodata S3 gateway instead of the download endpoint")
	cmd.Flags().StringVar(&flags.preHook, "pre-hook", "", "Tengo script to run before each download")
	cmd.Flags().StringVar(&flags.postHook, "post-hook", "", "Tengo script to run after each download")
	return cmd
}

func runDownload(cmd *cobra.Command, flags *downloadFlags, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	destDir := flags.dir
	if destDir == "" {
		destDir = cfg.Settings.DownloadDir
	}
	if destDir, err = filepath.Abs(destDir); err != nil {
		return err
	}

	catalogue := newCatalogueClient(cfg)
	products, err := resolveProducts(cmd, flags, args, catalogue)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		fmt.Println("Nothing to download")
		return nil
	}

	if flags.useS3 {
		return downloadViaS3(cmd, cfg, products, destDir, flags)
	}

	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	opts := download.Options{
		Dir:         destDir,
		NoVerify:    flags.noVerify || cfg.Settings.NoVerify,
		MaxAttempts: cfg.Settings.MaxAttempts,
	}
	if opts.Hooks, err = loadHooks(flags); err != nil {
		return err
	}

	manager := download.NewManager(session)
	return runBatch(cmd, manager, download.ItemsFromProducts(catalogue, products), opts, destDir, flags)
}

// runBatch fetches the items through the given manager and reports per-item
// outcomes, failing when any item did.
func runBatch(cmd *cobra.Command, manager download.Manager, items []download.Item, opts download.Options, destDir string, flags *downloadFlags) error {
	results := manager.FetchAll(cmd.Context(), items, opts)
	return reportResults(cmd, results, destDir, flags)
}

// resolveProducts turns the command input into product descriptors: explicit
// ids are looked up individually, otherwise the search flags drive a query.
func resolveProducts(cmd *cobra.Command, flags *downloadFlags, args []string, catalogue *odata.Client) ([]odata.Product, error) {
	if len(args) > 0 {
		products := make([]odata.Product, 0, len(args))
		for _, id := range args {
			search, err := odata.NewProductSearch(catalogue, odata.ProductQuery{ProductID: id})
			if err != nil {
				return nil, err
			}
			found, err := search.Get(cmd.Context(), 1)
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("product %s: not found", id)
			}
			products = append(products, found[0])
		}
		return products, nil
	}

	query, err := flags.search.toQuery()
	if err != nil {
		return nil, err
	}
	search, err := odata.NewProductSearch(catalogue, query)
	if err != nil {
		return nil, err
	}
	return search.Get(cmd.Context(), flags.search.limit)
}

func downloadViaS3(cmd *cobra.Command, cfg *config.Config, products []odata.Product, destDir string, flags *downloadFlags) error {
	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}

	failed := 0
	for _, p := range products {
		if p.S3Path == "" {
			logger.Warn("product has no S3 path", logrus.Fields{"id": p.ID})
			failed++
			continue
		}
		path, err := gateway.Download(cmd.Context(), p.S3Path, destDir)
		if err != nil {
			logger.Error("download failed", logrus.Fields{"id": p.ID, "error": err.Error()})
			failed++
			continue
		}
		fmt.Printf("downloaded %s -> %s\n", p.Name, path)
		if flags.extract {
			if err := extractProduct(cmd, path, destDir); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(products))
	}
	return nil
}

func newGateway(cfg *config.Config) (*s3.Gateway, error) {
	if cfg.Credentials.S3AccessKey != "" && cfg.Credentials.S3SecretKey != "" {
		endpoint := cfg.Endpoints.S3Endpoint
		return s3.NewGateway(endpoint, cfg.Credentials.S3AccessKey, cfg.Credentials.S3SecretKey, true)
	}
	return s3.NewGatewayFromEnv()
}

func loadHooks(flags *downloadFlags) (hook.Manager, error) {
	if flags.preHook == "" && flags.postHook == "" {
		return nil, nil
	}
	manager := hook.NewManager()
	for hookType, path := range map[hook.Type]string{
		hook.PreDownload:  flags.preHook,
		hook.PostDownload: flags.postHook,
	} {
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load hook script %s: %w", path, err)
		}
		if err := manager.AddHook(hook.Hook{Type: hookType, Content: string(content)}); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

func reportResults(cmd *cobra.Command, results []download.Result, destDir string, flags *downloadFlags) error {
	failed := 0
	for _, r := range results {
		if r.Status != download.StatusDone {
			failed++
			logger.Error("download failed", logrus.Fields{
				"id": r.ID, "attempts": r.Attempts, "error": r.Err.Error(),
			})
			continue
		}
		fmt.Printf("downloaded %s\n", r.Path)
		if flags.extract {
			if err := extractProduct(cmd, r.Path, destDir); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(results))
	}
	return nil
}

func extractProduct(cmd *cobra.Command, archivePath, destDir string) error {
	name := filepath.Base(archivePath)
	target := filepath.Join(destDir, trimArchiveExt(name))
	if err := archive.NewManager().ExtractAll(cmd.Context(), archivePath, target); err != nil {
		return fmt.Errorf("failed to extract %s: %w", name, err)
	}
	fmt.Printf("extracted %s -> %s\n", name, target)
	return nil
}

func trimArchiveExt(name string) string {
	ext := filepath.Ext(name)
	switch ext {
	case ".zip", ".tar", ".gz", ".tgz":
		return name[:len(name)-len(ext)]
	}
	return name + ".extracted"
}
