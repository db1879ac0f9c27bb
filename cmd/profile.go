package cmd

import (
	"fmt"

	"barnacle/library"
	"barnacle/ui"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage a game's profiles (named load orders)",
}

var profileAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create an empty profile for the selected game",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		profile, err := lib.AddProfile(ctx, game, args[0])
		if err != nil {
			return err
		}
		if use, _ := cmd.Flags().GetBool("use"); use {
			if err := lib.SetCurrentProfile(ctx, &profile); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added profile %s to %s\n", profile.Name, game.Name)
		return nil
	}),
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the selected game's profiles",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		profiles, err := lib.Profiles(ctx, game)
		if err != nil {
			return err
		}
		current, hasCurrent, err := lib.CurrentProfile(ctx)
		if err != nil {
			return err
		}
		state, mounted, err := lib.Status(ctx, game)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(profiles) == 0 {
			fmt.Fprintf(out, "%s has no profiles yet.\n", game.Name)
			return nil
		}
		for _, p := range profiles {
			marker := " "
			if hasCurrent && current.ID == p.ID {
				marker = "*"
			}
			line := fmt.Sprintf("%s %s", marker, p.Name)
			if mounted != nil && mounted.ID == p.ID {
				line += "  " + ui.State(state)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}),
}

var profileUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Make a profile the current one",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		profile, err := lib.Profile(ctx, game, args[0])
		if err != nil {
			return err
		}
		if err := lib.SetCurrentProfile(ctx, &profile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Now using %s / %s\n", game.Name, profile.Name)
		return nil
	}),
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a profile, its load order and its saved writes",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		profile, err := lib.Profile(ctx, game, args[0])
		if err != nil {
			return err
		}
		current, ok, err := lib.CurrentProfile(ctx)
		if err != nil {
			return err
		}
		if err := lib.RemoveProfile(ctx, game, profile); err != nil {
			return err
		}
		if ok && current.ID == profile.ID {
			if err := lib.SetCurrentProfile(ctx, nil); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %s\n", profile.Name)
		return nil
	}),
}

var profileRenameCmd = &cobra.Command{
	Use:   "rename [name] [new name]",
	Short: "Rename a profile of the selected game",
	Long: `Rename a profile of the selected game.
The profile keeps its directory, so the old short name still selects it.`,
	Args: cobra.ExactArgs(2),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		profile, err := lib.Profile(ctx, game, args[0])
		if err != nil {
			return err
		}
		renamed, err := lib.RenameProfile(ctx, game, profile, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed profile %s to %s\n", profile.Name, renamed.Name)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileAddCmd, profileListCmd, profileUseCmd, profileRenameCmd, profileRemoveCmd)

	profileAddCmd.Flags().Bool("use", false, "make the new profile the current one")
}
