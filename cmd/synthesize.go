package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/orchestrate"
	"github.com/rothnic/mercator/internal/recipestore"
	"github.com/rothnic/mercator/internal/tools"
)

var (
	synthDomain         string
	synthPath           string
	synthTranscriptFile string
	synthSave           bool
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize <html-file>",
	Short: "Derive and validate an extraction recipe for one saved page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		html, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read document %s", args[0])
		}

		var transcript []string
		if synthTranscriptFile != "" {
			raw, err := os.ReadFile(synthTranscriptFile)
			if err != nil {
				return eris.Wrapf(err, "read transcript %s", synthTranscriptFile)
			}
			for _, line := range strings.Split(string(raw), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					transcript = append(transcript, line)
				}
			}
		}

		lookup, err := initLookup()
		if err != nil {
			return err
		}

		doc := orchestrate.Document{
			Domain:     synthDomain,
			Path:       synthPath,
			HTML:       string(html),
			Transcript: transcript,
		}
		ts, err := tools.NewDocumentToolset(doc.HTML, doc.Transcript)
		if err != nil {
			return eris.Wrap(err, "parse document")
		}

		result, err := orchestrate.New(lookup).Run(doc, ts, cfg.Budget.Budget())
		if err != nil {
			return err
		}

		if synthSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}

			sr, err := st.CreateDraft(ctx, result.Synthesis.Recipe, recipestore.DraftOptions{
				Actor: "mercator synthesize",
				Target: &recipestore.DocumentTarget{
					Domain: synthDomain,
					Path:   synthPath,
				},
			})
			if err != nil {
				return eris.Wrap(err, "save draft")
			}
			if err := st.RecordValidation(ctx, sr.ID, result.Validation.Status == model.ValidationPass); err != nil {
				return eris.Wrap(err, "record validation outcome")
			}
			zap.L().Info("draft saved", zap.String("id", sr.ID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	synthesizeCmd.Flags().StringVar(&synthDomain, "domain", "", "document domain (required)")
	synthesizeCmd.Flags().StringVar(&synthPath, "path", "/", "document path")
	synthesizeCmd.Flags().StringVar(&synthTranscriptFile, "transcript", "", "file with one transcript line per row")
	synthesizeCmd.Flags().BoolVar(&synthSave, "save", false, "persist the synthesized recipe as a draft")
	_ = synthesizeCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(synthesizeCmd)
}
