package cmd

import (
	"fmt"

	"barnacle/library"

	"github.com/spf13/cobra"
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Register and run a game's external tools",
}

var toolAddCmd = &cobra.Command{
	Use:   "add [name] [path]",
	Short: "Register a tool to run from the game's deploy target",
	Args:  cobra.ExactArgs(2),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		toolArgs, _ := cmd.Flags().GetString("args")
		tool, err := lib.AddTool(ctx, game, args[0], args[1], toolArgs)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added tool %s\n", tool.Name)
		return nil
	}),
}

var toolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the selected game's tools",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		tools, err := lib.Tools(ctx, game)
		if err != nil {
			return err
		}
		for _, t := range tools {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s %s\n", truncate(t.Name, 24), t.Path, t.Args)
		}
		return nil
	}),
}

var toolRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Forget a tool",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		return lib.RemoveTool(ctx, game, args[0])
	}),
}

var toolRunCmd = &cobra.Command{
	Use:   "run [name]",
	Short: "Run a tool and wait for it to exit",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, args []string) error {
		ctx := cmd.Context()
		game, err := selectGame(ctx, lib)
		if err != nil {
			return err
		}
		return lib.RunTool(ctx, game, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
	}),
}

func init() {
	rootCmd.AddCommand(toolCmd)
	toolCmd.AddCommand(toolAddCmd, toolListCmd, toolRemoveCmd, toolRunCmd)

	toolAddCmd.Flags().String("args", "", "arguments passed to the tool")
}
