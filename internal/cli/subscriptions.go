package cli

import (
	"fmt"
	"strings"

	"github.com/glorpus-work/cdse/pkg/config"
	"github.com/glorpus-work/cdse/pkg/filter"
	"github.com/glorpus-work/cdse/pkg/subscriptions"
	"github.com/spf13/cobra"
)

// NewSubscriptionsCmd creates the subscriptions command group.
func NewSubscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"sub"},
		Short:   "Manage catalogue subscriptions",
		Long: `Manage catalogue subscriptions: standing filtered feeds of newly
published products. Results queue server-side until read and acknowledged.`,
	}
	cmd.AddCommand(
		newSubscriptionsListCmd(),
		newSubscriptionsInfoCmd(),
		newSubscriptionsCreateCmd(),
		newSubscriptionsDeleteCmd(),
		newSubscriptionsUpdateCmd(),
		newSubscriptionsReadCmd(),
		newSubscriptionsAckCmd(),
	)
	return cmd
}

// newSubscriptionClient builds an authenticated subscription client from the
// config.
func newSubscriptionClient(cfg *config.Config) (*subscriptions.Client, error) {
	session, err := newSession(cfg)
	if err != nil {
		return nil, err
	}
	var opts []subscriptions.ClientOption
	if cfg.Endpoints.CatalogueURL != "" {
		opts = append(opts, subscriptions.WithBaseURL(cfg.Endpoints.CatalogueURL))
	}
	return subscriptions.NewClient(session, opts...), nil
}

func newSubscriptionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all subscriptions of the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newSubscriptionClient(cfg)
			if err != nil {
				return err
			}

			subs, err := client.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				fmt.Println("No subscriptions")
				return nil
			}
			fmt.Printf("%-38s %-10s %s\n", "ID", "STATUS", "FILTER")
			fmt.Println(strings.Repeat("-", 100))
			for _, s := range subs {
				fmt.Printf("%-38s %-10s %s\n", s.ID, s.Status, s.FilterParam)
			}
			return nil
		},
	}
}

func newSubscriptionsInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <subscription-id>",
		Short: "Show one subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newSubscriptionClient(cfg)
			if err != nil {
				return err
			}

			sub, err := client.Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		},
	}
}

func newSubscriptionsCreateCmd() *cobra.Command {
	var (
		collection string
		endpoint   string
		username   string
		password   string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a subscription",
		Long: `Create a running subscription. With --collection the subscription only
matches products of that collection; without it every new product queues.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newSubscriptionClient(cfg)
			if err != nil {
				return err
			}

			var node filter.Node
			if collection != "" {
				if node, err = filter.Eq("Collection/Name", collection); err != nil {
					return err
				}
			}
			var notif *subscriptions.NotificationParams
			if endpoint != "" {
				notif = &subscriptions.NotificationParams{
					Endpoint: endpoint,
					Username: username,
					Password: password,
				}
			}

			sub, err := client.Create(cmd.Context(), node, notif)
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		},
	}
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "collection name (e.g. SENTINEL-2)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "push notification endpoint URL")
	cmd.Flags().StringVar(&username, "endpoint-user", "", "push endpoint username")
	cmd.Flags().StringVar(&password, "endpoint-password", "", "push endpoint password")
	return cmd
}

func newSubscriptionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <subscription-id>",
		Short: "Delete a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newSubscriptionClient(cfg)
			if err != nil {
				return err
			}

			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted subscription %s\n", args[0])
			return nil
		},
	}
}

func newSubscriptionsUpdateCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "update <subscription-id>",
		Short: "Change a subscription's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newSubscriptionClient(cfg)
			if err != nil {
				return err
			}

			sub, err := client.Update(cmd.Context(), args[0], subscriptions.Status(status), nil)
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (running, paused, cancelled)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newSubscriptionsReadCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "read <subscription-id>",
		Short: "Read queued results without acknowledging them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newSubscriptionClient(cfg)
			if err != nil {
				return err
			}

			notifications, err := client.Read(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(notifications) == 0 {
				fmt.Println("No queued results")
				return nil
			}
			fmt.Printf("%-38s %-22s %s\n", "PRODUCT ID", "ACK ID", "NAME")
			fmt.Println(strings.Repeat("-", 100))
			for _, n := range notifications {
				fmt.Printf("%-38s %-22s %s\n", n.ProductID, n.AckID, n.ProductName)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 1,
		fmt.Sprintf("results to read (max %d)", subscriptions.MaxReadTop))
	return cmd
}

func newSubscriptionsAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <subscription-id> <ack-id>",
		Short: "Acknowledge a queued result",
		Long: `Acknowledge a queued result, removing it and everything queued before it
from the subscription.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newSubscriptionClient(cfg)
			if err != nil {
				return err
			}

			sub, err := client.Ack(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSubscription(sub)
			return nil
		},
	}
}

func printSubscription(sub subscriptions.Subscription) {
	fmt.Printf("ID:       %s\n", sub.ID)
	fmt.Printf("Status:   %s\n", sub.Status)
	if sub.FilterParam != "" {
		fmt.Printf("Filter:   %s\n", sub.FilterParam)
	}
	if sub.NotificationEndpoint != "" {
		fmt.Printf("Endpoint: %s\n", sub.NotificationEndpoint)
	}
	if !sub.SubmissionDate.IsZero() {
		fmt.Printf("Created:  %s\n", sub.SubmissionDate.Format("2006-01-02 15:04:05"))
	}
}
