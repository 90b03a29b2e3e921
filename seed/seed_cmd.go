package seed

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trevex/ofga"
)

func NewSeedCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [flags]",
		Short: "Reconcile a store's model and tuple set against local files",
	}

	var (
		apiURL     string
		storeName  string
		modelFile  string
		tuplesFile string
	)

	flags := cmd.Flags()
	flags.StringVar(&apiURL, "api-url", os.Getenv("FGA_API_URL"), "base URL of the FGA service")
	flags.StringVar(&storeName, "store-name", os.Getenv("FGA_STORE_NAME"), "name of the store to reconcile")
	flags.StringVar(&modelFile, "model-file", "model.fga", "model description transformed by the external fga CLI")
	flags.StringVar(&tuplesFile, "tuples-file", "tuples.json", "JSON array of seed tuples")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := ofga.NewClient(apiURL, ofga.WithLogger(log.WithGroup("client")))
		if err != nil {
			return err
		}

		model, err := TransformModel(ctx, modelFile)
		if err != nil {
			return err
		}
		tuples, err := LoadTupleFile(tuplesFile)
		if err != nil {
			return err
		}

		r := &Reconciler{
			Client:    client,
			StoreName: storeName,
			Model:     model,
			Tuples:    tuples,
			Defaults:  client.Defaults(),
			Log:       log,
		}
		return r.Apply(ctx)
	}

	return cmd
}
