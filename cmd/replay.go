package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/validate"
)

var (
	replayRecipeID   string
	replayRecipeFile string
)

var replayCmd = &cobra.Command{
	Use:   "replay <html-file>",
	Short: "Execute a stored recipe against a saved page, no synthesis or validation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		html, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read document %s", args[0])
		}

		var recipe *model.Recipe
		switch {
		case replayRecipeFile != "":
			raw, err := os.ReadFile(replayRecipeFile)
			if err != nil {
				return eris.Wrapf(err, "read recipe %s", replayRecipeFile)
			}
			recipe = &model.Recipe{}
			if err := json.Unmarshal(raw, recipe); err != nil {
				return eris.Wrap(err, "decode recipe")
			}
		case replayRecipeID != "":
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			sr, err := st.GetByID(ctx, replayRecipeID)
			if err != nil {
				return err
			}
			recipe = &sr.Recipe
		default:
			// No explicit recipe means replaying the latest stable one.
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			sr, err := st.GetLatestStable(ctx)
			if err != nil {
				return err
			}
			recipe = &sr.Recipe
		}

		exec, err := validate.ExecuteRecipe(string(html), recipe)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exec)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayRecipeID, "recipe-id", "", "stored recipe id (default: latest stable recipe)")
	replayCmd.Flags().StringVar(&replayRecipeFile, "recipe-file", "", "recipe JSON file")
	rootCmd.AddCommand(replayCmd)
}
