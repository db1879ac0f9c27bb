package cmd

import (
	"fmt"

	"barnacle/library"

	"github.com/spf13/cobra"
)

var modCmd = &cobra.Command{
	Use:   "mod",
	Short: "Import, list and remove a game's mods",
}

var modImportCmd = &cobra.Command{
	Use:   "import [archive or directory]",
	Short: "Import a mod archive or directory into the selected game",
	Long: `Import a mod archive or directory into the selected game.
Example: barnacle mod import ~/Downloads/QuickMenu.7z --name "Quick Menu"

The payload is extracted into the library and made read-only. Add it to a
profile with 'barnacle order add'.`,
	Args: cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		mod, err := lib.Import(ctx, game, args[0], name)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %s into %s\n", mod.Name, game.Name)
		if add, _ := cmd.Flags().GetBool("add"); add {
			_, profile, err := selectProfile(ctx, lib)
			if err != nil {
				return err
			}
			entry, err := lib.Order().Append(ctx, profile.ID, mod.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Added to %s at position %d\n", profile.Name, entry.Position)
		}
		return nil
	}),
}

var modListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the selected game's imported mods",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		mods, err := lib.Mods(ctx, game)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(mods) == 0 {
			fmt.Fprintf(out, "%s has no mods yet.\n", game.Name)
			return nil
		}
		fmt.Fprintf(out, "%-40s %s\n", "Mod", "Source")
		for _, m := range mods {
			fmt.Fprintf(out, "%-40s %s\n", truncate(m.Name, 40), m.Source)
		}
		return nil
	}),
}

var modRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Delete a mod no profile uses any more",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		mod, err := lib.Mod(ctx, game, args[0])
		if err != nil {
			return err
		}
		if err := lib.RemoveMod(ctx, game, mod); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", mod.Name)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(modCmd)
	modCmd.AddCommand(modImportCmd, modListCmd, modRemoveCmd)

	modImportCmd.Flags().StringP("name", "n", "", "display name (defaults to the file name)")
	modImportCmd.Flags().Bool("add", false, "append the mod to the selected profile's load order")
}
