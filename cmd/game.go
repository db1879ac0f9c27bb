package cmd

import (
	"fmt"
	"strings"

	"barnacle/db"
	"barnacle/errs"
	"barnacle/library"
	"barnacle/ui"

	"github.com/spf13/cobra"
)

var gameCmd = &cobra.Command{
	Use:   "game",
	Short: "Add, list, edit and remove managed games",
}

var gameAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add a game to the library",
	Long: `Add a game to the library.
Example: barnacle game add Morrowind --kind openmw --install-dir ~/games/Morrowind

The install directory becomes the lowest layer of every deploy and is never
written to.`,
	Args: cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		kindName, _ := cmd.Flags().GetString("kind")
		installDir, _ := cmd.Flags().GetString("install-dir")
		targets, _ := cmd.Flags().GetStringSlice("target")

		kind, ok := db.ParseDeployKind(kindName)
		if !ok {
			return errs.New(errs.CodeInvalidInput, "unknown deploy kind").
				With("kind", kindName).
				With("known", kindNames())
		}
		game, err := lib.AddGame(cmd.Context(), library.GameSpec{
			Name:       args[0],
			Kind:       kind,
			InstallDir: installDir,
			Targets:    targets,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", game.Name, kind.DisplayName())
		return nil
	}),
}

var gameListCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed games and their deploy state",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		games, err := lib.Games(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(games) == 0 {
			fmt.Fprintln(out, "No games yet. Add one with 'barnacle game add'.")
			return nil
		}
		fmt.Fprintf(out, "%-24s %-20s %-12s %s\n", "Game", "Kind", "State", "Install directory [targets]")
		for _, g := range games {
			state, _, err := lib.Status(ctx, g)
			if err != nil {
				return err
			}
			dirs := g.InstallDir
			if targets := g.TargetList(); len(targets) > 0 {
				dirs += " [" + strings.Join(targets, ", ") + "]"
			}
			// Pad before coloring to keep the columns aligned.
			fmt.Fprintf(out, "%-24s %-20s %s %s\n",
				truncate(g.Name, 24),
				g.DeployKind.DisplayName(),
				ui.Colorize(fmt.Sprintf("%-12s", state), ui.StateColor(state)),
				dirs,
			)
		}
		return nil
	}),
}

var gameEditCmd = &cobra.Command{
	Use:   "edit [name]",
	Short: "Rename a game or change its deploy kind",
	Long: `Rename a game or change its deploy kind.
Example: barnacle game edit Morrowind --name "Morrowind GOTY" --kind overlay

The game keeps its library directory. Editing is refused while a profile of
the game is deployed.`,
	Args: cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := lib.Game(ctx, args[0])
		if err != nil {
			return err
		}

		var edit library.GameEdit
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			edit.Name = &name
		}
		if cmd.Flags().Changed("kind") {
			kindName, _ := cmd.Flags().GetString("kind")
			kind, ok := db.ParseDeployKind(kindName)
			if !ok {
				return errs.New(errs.CodeInvalidInput, "unknown deploy kind").
					With("kind", kindName).
					With("known", kindNames())
			}
			edit.Kind = &kind
		}
		if edit.Name == nil && edit.Kind == nil {
			return errs.New(errs.CodeInvalidInput, "nothing to change, pass --name or --kind")
		}

		updated, err := lib.EditGame(ctx, game, edit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s)\n", updated.Name, updated.DeployKind.DisplayName())
		return nil
	}),
}

var gameRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a game with all its mods and profiles",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		if err := lib.RemoveGame(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	}),
}

func kindNames() string {
	names := make([]string, 0, len(db.DeployKinds))
	for _, k := range db.DeployKinds {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(gameCmd)
	gameCmd.AddCommand(gameAddCmd, gameListCmd, gameEditCmd, gameRemoveCmd)

	gameAddCmd.Flags().StringP("kind", "k", db.DeployOverlay.String(), "deploy kind: "+kindNames())
	gameAddCmd.Flags().StringP("install-dir", "d", "", "the game's install directory")
	gameAddCmd.Flags().StringSlice("target", nil, "extra target path inside the install directory (repeatable)")
	_ = gameAddCmd.MarkFlagRequired("install-dir")

	gameEditCmd.Flags().String("name", "", "new display name")
	gameEditCmd.Flags().StringP("kind", "k", "", "new deploy kind: "+kindNames())
}
