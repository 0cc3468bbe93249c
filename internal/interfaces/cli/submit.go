package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	kafkainfra "github.com/aman-ankur/labextract/internal/infrastructure/messaging/kafka"
	miniostore "github.com/aman-ankur/labextract/internal/infrastructure/storage/minio"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
	"github.com/aman-ankur/labextract/pkg/types/report"
)

// NewSubmitCmd creates "labextract submit <pages.json>": upload the pages to
// object storage and queue an extraction job for the worker.
func NewSubmitCmd() *cobra.Command {
	var (
		documentID string
		noGateway  bool
	)

	cmd := &cobra.Command{
		Use:   "submit <pages.json>",
		Short: "Queue an async extraction job for the worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pages, err := LoadPagesFile(args[0])
			if err != nil {
				return err
			}
			if documentID == "" {
				documentID = string(report.NewDocumentID())
			}

			storageClient, err := miniostore.NewClient(&cliCtx.Config.MinIO, cliCtx.Logger)
			if err != nil {
				return err
			}
			store := miniostore.NewPageStore(storageClient, cliCtx.Logger)
			objectKey, err := store.StorePages(ctx, documentID, pages)
			if err != nil {
				return err
			}

			producer, err := kafkainfra.NewProducer(kafkainfra.ProducerConfig{
				Brokers: cliCtx.Config.Kafka.Brokers,
			}, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer producer.Close()

			opts := biomarker.DefaultOptions()
			opts.UseGateway = !noGateway
			job := kafkainfra.NewExtractionJob(documentID, objectKey, opts)
			if err := producer.PublishJob(ctx, cliCtx.Config.Kafka.JobsTopic, job); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "submitted job %s for document %s (%d pages)\n",
				job.JobID, documentID, len(pages))
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document-id", "", "document identifier (default: generated)")
	cmd.Flags().BoolVar(&noGateway, "no-gateway", false, "ask the worker to use the deterministic parser only")

	return cmd
}
