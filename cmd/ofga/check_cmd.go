package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trevex/ofga"
)

func newCheckCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags] <user> <relation> <object>",
		Short: "Check whether a relationship holds",
		Args:  cobra.ExactArgs(3),
	}

	var (
		apiURL    string
		storeName string
		storeID   string
		modelID   string
		retries   int
	)

	flags := cmd.Flags()
	flags.StringVar(&apiURL, "api-url", os.Getenv("FGA_API_URL"), "base URL of the FGA service")
	flags.StringVar(&storeName, "store-name", os.Getenv("FGA_STORE_NAME"), "store name to resolve identifiers from (ignored when --store-id is given)")
	flags.StringVar(&storeID, "store-id", "", "store id")
	flags.StringVar(&modelID, "model-id", "", "authorization model id")
	flags.IntVar(&retries, "retries", 0, "transport-level retries for transient failures")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		options := []ofga.Option{ofga.WithLogger(log.WithGroup("client"))}
		if retries > 0 {
			options = append(options, ofga.WithRetries(retries))
		}
		if storeID != "" {
			options = append(options, ofga.WithStoreID(storeID))
		}
		if modelID != "" {
			options = append(options, ofga.WithModelID(modelID))
		}
		client, err := ofga.NewClient(apiURL, options...)
		if err != nil {
			return err
		}
		if storeID == "" && storeName != "" {
			if err := client.LoadDefaults(ctx, storeName); err != nil {
				return err
			}
		}

		key := ofga.TupleKey{User: args[0], Relation: args[1], Object: args[2]}
		allowed, err := client.IsAllowed(ctx, key, ofga.QueryOptions{})
		if err != nil {
			return err
		}
		log.Info("check result",
			slog.String("user", key.User),
			slog.String("relation", key.Relation),
			slog.String("object", key.Object),
			slog.Bool("allowed", allowed))
		if !allowed {
			return fmt.Errorf("%s is not %s of %s", key.User, key.Relation, key.Object)
		}
		return nil
	}

	return cmd
}
