package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/recipestore"
)

var (
	recipesListState    string
	recipesPromoteActor string
	recipesPromoteNotes string
)

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "Inspect and manage stored recipes",
}

var recipesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored recipes, oldest update first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		out, err := st.List(ctx, recipestore.Filter{State: model.LifecycleState(recipesListState)})
		if err != nil {
			return err
		}
		for _, sr := range out {
			target := ""
			if sr.Target != nil {
				target = sr.Target.Domain + sr.Target.Path
			}
			fmt.Printf("%s  %-9s  v%d  %-40s  %s\n",
				sr.ID, sr.Recipe.Lifecycle.State, sr.Recipe.Version, sr.Recipe.Name, target)
		}
		return nil
	},
}

var recipesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one stored recipe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sr, err := st.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sr)
	},
}

var recipesPromoteCmd = &cobra.Command{
	Use:   "promote <id>",
	Short: "Promote a draft recipe to stable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sr, err := st.Promote(ctx, args[0], recipestore.PromoteOptions{
			Actor: recipesPromoteActor,
			Notes: recipesPromoteNotes,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s promoted to %s at %s\n", sr.ID, sr.Recipe.Lifecycle.State, sr.PromotedAt.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	},
}

var recipesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every stored recipe document to stdout as a JSON array",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		out, err := st.List(ctx, recipestore.Filter{Limit: 10000})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	recipesListCmd.Flags().StringVar(&recipesListState, "state", "", "filter by lifecycle state")
	recipesPromoteCmd.Flags().StringVar(&recipesPromoteActor, "actor", "", "who is promoting")
	recipesPromoteCmd.Flags().StringVar(&recipesPromoteNotes, "notes", "", "promotion notes")
	recipesCmd.AddCommand(recipesListCmd, recipesShowCmd, recipesPromoteCmd, recipesExportCmd)
	rootCmd.AddCommand(recipesCmd)
}
