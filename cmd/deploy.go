package cmd

import (
	"fmt"
	"io"

	"barnacle/db"
	"barnacle/deploy"
	"barnacle/library"
	"barnacle/ui"

	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Mount the selected profile over its game",
	Long: `Mount the selected profile over its game.

The enabled mods are stacked in load order on top of the game's install
directory. Files the game writes while deployed land in the profile, not in
the install directory.`,
	Args: cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		_, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		redeploy, _ := cmd.Flags().GetBool("redeploy")
		var m deploy.Mount
		if redeploy {
			m, err = lib.Redeploy(ctx, profile)
		} else {
			m, err = lib.Deploy(ctx, profile)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s over %s (%d mods)\n",
			ui.State(deploy.Mounted), profile.Name, m.Handle.Target, len(m.Layers))
		return nil
	}),
}

var undeployCmd = &cobra.Command{
	Use:   "undeploy",
	Short: "Detach the selected profile",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		_, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		if err := lib.Undeploy(ctx, profile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.State(deploy.Unmounted), profile.Name)
		return nil
	}),
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the layers a deploy would stack, lowest first",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		game, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		layers, err := lib.Resolve(ctx, profile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "    %s\n", ui.Colorize(game.InstallDir, ui.ColorMuted))
		for i, l := range layers {
			fmt.Fprintf(out, "%3d %s\n", i, l.Mod.Name)
		}
		return nil
	}),
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "List every file of the merged view and which layer provides it",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		game, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		sources, err := lib.Preview(ctx, profile)
		if err != nil {
			return err
		}
		names, err := layerNames(cmd, lib, game, profile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range sources {
			name, ok := names[s.Layer]
			if !ok {
				name = s.Layer
			}
			fmt.Fprintf(out, "%-60s %s\n", s.Path, ui.Colorize(name, ui.ColorAccent))
		}
		return nil
	}),
}

// layerNames maps the directories of profile's stack to what a user calls
// them.
func layerNames(cmd *cobra.Command, lib *library.Library, game db.Game, profile db.Profile) (map[string]string, error) {
	layers, err := lib.Resolve(cmd.Context(), profile)
	if err != nil {
		return nil, err
	}
	l := lib.Layout()
	names := map[string]string{
		game.InstallDir:            "(game)",
		l.UpperDir(game, profile): "(profile writes)",
	}
	for _, layer := range layers {
		names[lib.ContentDir(game, layer.Mod)] = layer.Mod.Name
	}
	return names, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which profile, if any, each game has deployed",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		games := []db.Game{}
		if gameFlag != "" {
			g, err := lib.Game(ctx, gameFlag)
			if err != nil {
				return err
			}
			games = append(games, g)
		} else {
			all, err := lib.Games(ctx)
			if err != nil {
				return err
			}
			games = all
		}
		current, hasCurrent, err := lib.CurrentProfile(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if hasCurrent {
			fmt.Fprintf(out, "Current profile: %s\n", current.Name)
		}
		for _, g := range games {
			if err := printStatus(out, cmd, lib, g); err != nil {
				return err
			}
		}
		return nil
	}),
}

func printStatus(out io.Writer, cmd *cobra.Command, lib *library.Library, game db.Game) error {
	state, profile, err := lib.Status(cmd.Context(), game)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("%-24s %s", truncate(game.Name, 24), ui.State(state))
	if profile != nil {
		line += " " + profile.Name
	}
	fmt.Fprintln(out, line)
	return nil
}

func init() {
	rootCmd.AddCommand(deployCmd, undeployCmd, resolveCmd, previewCmd, statusCmd)

	deployCmd.Flags().BoolP("redeploy", "r", false, "undeploy first if the profile is already mounted")
}
