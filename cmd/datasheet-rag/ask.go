package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dshills/datasheet-rag/internal/quality"
	"github.com/dshills/datasheet-rag/internal/rag"
	"github.com/dshills/datasheet-rag/pkg/types"
)

func newAskCmd(c *cli) *cobra.Command {
	var role string
	var topK int
	var stream, asJSON bool
	var filter rag.DocumentFilter

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			req := rag.QueryRequest{
				Question: strings.Join(args, " "),
				UserRole: types.UserRole(role),
				TopK:     topK,
			}
			if len(filter.DocumentIDs)+len(filter.DocumentTypes)+len(filter.ProductFamilies)+len(filter.ProductModels)+len(filter.ChunkTypes) > 0 {
				req.DocumentFilter = &filter
			}

			out := cmd.OutOrStdout()
			if stream && !asJSON {
				resp, err := a.RAG.QueryStream(ctx, req, rag.StreamHandler{
					Start: func(rag.StreamStart) error { return nil },
					Token: func(token string) error {
						_, err := io.WriteString(out, token)
						return err
					},
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				printSources(out, resp)
				return nil
			}

			resp, err := a.RAG.Query(ctx, req)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprintln(out, resp.Answer)
			printSources(out, resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", string(types.RoleEngineer), "user role: engineer, quality, sales or support")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks used as context (default from config)")
	cmd.Flags().BoolVarP(&stream, "stream", "s", false, "print the answer as it is generated")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	addFilterFlags(cmd.Flags(), &filter)
	return cmd
}

// addFilterFlags binds the retrieval filter to repeatable flags
func addFilterFlags(fs *pflag.FlagSet, f *rag.DocumentFilter) {
	fs.StringSliceVar(&f.DocumentIDs, "document", nil, "only use these document ids")
	fs.StringSliceVar(&f.DocumentTypes, "type", nil, "only use these document types")
	fs.StringSliceVar(&f.ProductFamilies, "family", nil, "only use these product families")
	fs.StringSliceVar(&f.ProductModels, "model", nil, "only use these product models")
	fs.StringSliceVar(&f.ChunkTypes, "chunk-type", nil, "only use text or table chunks")
}

func printSources(w io.Writer, resp *rag.QueryResponse) {
	if resp == nil {
		return
	}
	fmt.Fprintf(w, "\nconfidence %.2f, model %s, %d ms\n", resp.Confidence, resp.ModelUsed, resp.QueryTimeMS)
	for i, src := range resp.Sources {
		location := fmt.Sprintf("p.%d", src.PageNumber)
		if src.Section != "" {
			location += ", " + src.Section
		}
		fmt.Fprintf(w, "[%d] %s (%s) score %.2f\n", i+1, src.DocumentName, location, src.RelevanceScore)
	}
}

func newSelfTestCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selftest [suite]",
		Short: "Run a built-in answer quality suite against the indexed documents",
		Long:  "Run a built-in answer quality suite. Without a suite name the available suites are listed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, s := range quality.Suites() {
					fmt.Fprintf(out, "%-15s %2d questions  %s\n", s.Name, len(s.Questions), s.Description)
				}
				return nil
			}

			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.RAG.Validator().RunSuite(ctx, args[0], a.RAG.Asker())
			if err != nil {
				return err
			}

			for _, r := range report.TestResults {
				mark := "PASS"
				if !r.Passed {
					mark = "FAIL"
				}
				fmt.Fprintf(out, "%s  #%d %s (score %.2f)\n", mark, r.TestID, r.Question, r.Validation.QualityScore)
			}
			fmt.Fprintf(out, "\n%d/%d passed, overall score %.2f\n", report.Passed, report.TotalTests, report.OverallScore)
			return nil
		},
	}
	return cmd
}
