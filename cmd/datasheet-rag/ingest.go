package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/datasheet-rag/internal/indexer"
)

func newIngestCmd(c *cli) *cobra.Command {
	var docType, family, model, docVersion, language string

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Ingest PDF files and wait until they are indexed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			meta := indexer.Metadata{
				DocumentType:  indexer.CleanFormValue(docType),
				ProductFamily: indexer.CleanFormValue(family),
				ProductModel:  indexer.CleanFormValue(model),
				Version:       indexer.CleanFormValue(docVersion),
				Language:      indexer.CleanFormValue(language),
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				result, err := ingestFile(cmd, a.Indexer, path, meta)
				var dup *indexer.DuplicateError
				switch {
				case errors.As(err, &dup):
					fmt.Fprintf(out, "skip  %s: already ingested as %s\n", path, dup.DocumentID)
				case err != nil:
					failed++
					fmt.Fprintf(out, "FAIL  %s: %v\n", path, err)
				default:
					chunks := 0
					if status, err := a.Indexer.Status(ctx, result.DocumentID); err == nil {
						chunks = status.ChunkCount
					}
					fmt.Fprintf(out, "ok    %s -> %s (%d chunks)\n", path, result.DocumentID, chunks)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&docType, "type", "t", "datasheet", "document type: datasheet, manual or specification")
	cmd.Flags().StringVar(&family, "family", "", "product family, e.g. DDR5")
	cmd.Flags().StringVar(&model, "model", "", "product model")
	cmd.Flags().StringVar(&docVersion, "doc-version", "", "document revision")
	cmd.Flags().StringVar(&language, "language", "", "document language code")
	return cmd
}

func ingestFile(cmd *cobra.Command, idx *indexer.Indexer, path string, meta indexer.Metadata) (*indexer.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return idx.Ingest(cmd.Context(), indexer.UploadRequest{
		Filename: filepath.Base(path),
		Reader:   f,
		Size:     info.Size(),
		Meta:     meta,
	})
}

func newReindexCmd(c *cli) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reindex [document-id]...",
		Short: "Re-parse and re-embed documents (all documents when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result, err := a.Indexer.Reindex(ctx, args, force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "processed %d, skipped %d, failed %d in %s\n",
				result.Processed, result.Skipped, result.Failed, result.Duration.Round(time.Millisecond))
			for _, msg := range result.Errors {
				fmt.Fprintf(out, "  %s\n", msg)
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d documents failed", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "reindex documents that are already completed")
	return cmd
}
