package cmd

import (
	"fmt"
	"strings"

	"barnacle/library"
	"barnacle/ui"

	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Edit the selected profile's load order",
	Long: `Edit the selected profile's load order.

Entries are addressed by the position 'order list' shows. Position 0 is the
lowest layer; a later entry overrides the files of every entry before it.`,
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the load order, lowest precedence first",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		_, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		chain, err := lib.Chain(ctx, profile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(chain) == 0 {
			fmt.Fprintf(out, "%s has an empty load order.\n", profile.Name)
			return nil
		}
		for _, l := range chain {
			line := fmt.Sprintf("%3d %s %s", l.Entry.Position, ui.EnabledMark(l.Entry.Enabled), l.Mod.Name)
			if l.Entry.Notes != "" {
				line += "  " + ui.Colorize(l.Entry.Notes, ui.ColorMuted)
			}
			fmt.Fprintln(out, line)
		}
		return nil
	}),
}

var orderAddCmd = &cobra.Command{
	Use:   "add [mod]",
	Short: "Add an imported mod to the load order",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		mod, err := lib.Mod(ctx, game, args[0])
		if err != nil {
			return err
		}
		order := lib.Order()
		at, _ := cmd.Flags().GetString("at")
		if at == "" {
			entry, err := order.Append(ctx, profile.ID, mod.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s at position %d\n", mod.Name, entry.Position)
			return nil
		}
		pos, err := parsePosition(at)
		if err != nil {
			return err
		}
		entry, err := order.Insert(ctx, profile.ID, mod.ID, pos)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s at position %d\n", mod.Name, entry.Position)
		return nil
	}),
}

var orderRemoveCmd = &cobra.Command{
	Use:   "remove [position]",
	Short: "Take an entry out of the load order (the mod stays imported)",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		_, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		layer, err := layerAt(ctx, lib, profile, args[0])
		if err != nil {
			return err
		}
		if err := lib.Order().Remove(ctx, profile.ID, layer.Entry.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", layer.Mod.Name, profile.Name)
		return nil
	}),
}

var orderMoveCmd = &cobra.Command{
	Use:   "move [position] [new position]",
	Short: "Move an entry to another position",
	Args:  cobra.ExactArgs(2),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		_, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		layer, err := layerAt(ctx, lib, profile, args[0])
		if err != nil {
			return err
		}
		to, err := parsePosition(args[1])
		if err != nil {
			return err
		}
		if err := lib.Order().Move(ctx, profile.ID, layer.Entry.ID, to); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to position %d\n", layer.Mod.Name, to)
		return nil
	}),
}

// toggleCmd builds the enable and disable subcommands.
func toggleCmd(enabled bool) *cobra.Command {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	return &cobra.Command{
		Use:   verb + " [position]",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " an entry without moving it",
		Args:  cobra.ExactArgs(1),
		RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
			ctx := cmd.Context()
			_, profile, err := selectProfile(ctx, lib)
			if err != nil {
				return err
			}
			layer, err := layerAt(ctx, lib, profile, args[0])
			if err != nil {
				return err
			}
			if err := lib.Order().SetEnabled(ctx, profile.ID, layer.Entry.ID, enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.EnabledMark(enabled), layer.Mod.Name)
			return nil
		}),
	}
}

var orderNotesCmd = &cobra.Command{
	Use:   "notes [position] [text...]",
	Short: "Set an entry's notes; no text clears them",
	Args:  cobra.MinimumNArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		_, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		layer, err := layerAt(ctx, lib, profile, args[0])
		if err != nil {
			return err
		}
		return lib.Order().SetNotes(ctx, profile.ID, layer.Entry.ID, strings.Join(args[1:], " "))
	}),
}

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(orderListCmd, orderAddCmd, orderRemoveCmd, orderMoveCmd, toggleCmd(true), toggleCmd(false), orderNotesCmd)

	orderAddCmd.Flags().String("at", "", "insert at this position instead of appending")
}
