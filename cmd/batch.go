package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/orchestrate"
	"github.com/rothnic/mercator/internal/recipestore"
	"github.com/rothnic/mercator/internal/tools"
)

var (
	batchDomain      string
	batchConcurrency int
	batchSave        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Run orchestration over every HTML file in a directory",
	Long:  "Each .html file becomes one document; its path under the directory becomes the document path. Individual failures are logged and do not abort the batch.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		entries, err := os.ReadDir(args[0])
		if err != nil {
			return eris.Wrapf(err, "read batch dir %s", args[0])
		}

		lookup, err := initLookup()
		if err != nil {
			return err
		}

		var st recipestore.Store
		if batchSave {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentDocuments
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var succeeded, failed atomic.Int64

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".html") {
				continue
			}
			name := entry.Name()
			g.Go(func() error {
				log := zap.L().With(zap.String("document", name))

				html, err := os.ReadFile(filepath.Join(args[0], name))
				if err != nil {
					failed.Add(1)
					log.Error("read document failed", zap.Error(err))
					return nil
				}

				doc := orchestrate.Document{
					Domain: batchDomain,
					Path:   "/" + strings.TrimSuffix(name, ".html"),
					HTML:   string(html),
				}
				ts, err := tools.NewDocumentToolset(doc.HTML, nil)
				if err != nil {
					failed.Add(1)
					log.Error("parse document failed", zap.Error(err))
					return nil
				}

				result, err := orchestrate.New(lookup).Run(doc, ts, cfg.Budget.Budget())
				if err != nil {
					failed.Add(1)
					log.Error("orchestration failed", zap.Error(err))
					return nil // don't abort batch on individual failure
				}

				if st != nil && result.Validation.Status == model.ValidationPass {
					sr, err := st.CreateDraft(gctx, result.Synthesis.Recipe, recipestore.DraftOptions{
						Actor:  "mercator batch",
						Target: &recipestore.DocumentTarget{Domain: doc.Domain, Path: doc.Path},
					})
					if err != nil {
						log.Warn("save draft failed", zap.Error(err))
					} else if err := st.RecordValidation(gctx, sr.ID, true); err != nil {
						log.Warn("record validation failed", zap.Error(err))
					}
				}

				succeeded.Add(1)
				log.Info("orchestration complete",
					zap.String("status", string(result.Validation.Status)),
					zap.Float64("confidence", result.Validation.Confidence),
				)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch processing")
		}

		zap.L().Info("batch complete",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDomain, "domain", "", "domain for every document in the batch (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent orchestrations (default from config)")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist passing recipes as drafts")
	_ = batchCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(batchCmd)
}
