package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"barnacle/db"
	"barnacle/deploy"
	"barnacle/errs"
	"barnacle/library"
	"barnacle/loadorder"
	"barnacle/logger"
	"barnacle/ui"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// guiCmd represents the gui command
var guiCmd = &cobra.Command{
	Use:   "gui",
	Short: "Edit the selected profile's load order interactively",
	Long:  `Launch an interactive TUI to reorder, enable and disable mods and to deploy the profile.`,
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(cmd *cobra.Command, lib *library.Library, _ []string) error {
		ctx := cmd.Context()
		game, profile, err := selectProfile(ctx, lib)
		if err != nil {
			return err
		}
		p := tea.NewProgram(newModel(ctx, lib, game, profile), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			logger.Log.Errorw("Failed to run GUI", zap.Error(err))
			return err
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(guiCmd)
}

// Model represents the state of the TUI
type Model struct {
	ctx     context.Context
	lib     *library.Library
	game    db.Game
	profile db.Profile

	layers        []loadorder.Layer
	state         deploy.State
	selectedIndex int
	loading       bool
	busy          string // Describes the running action, empty when idle
	error         string
	message       string
	width         int
	height        int
	spinner       spinner.Model
}

func newModel(ctx context.Context, lib *library.Library, game db.Game, profile db.Profile) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ui.ColorAccent))
	return Model{
		ctx:     ctx,
		lib:     lib,
		game:    game,
		profile: profile,
		loading: true,
		width:   80,
		height:  24,
		spinner: s,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadChain(), m.spinner.Tick)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case chainLoadedMsg:
		m.handleChainLoaded(msg)
	case spinner.TickMsg:
		if !m.loading && m.busy == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case errorMsg:
		m.error = string(msg)
		m.loading = false
		m.busy = ""
	case actionDoneMsg:
		return m.handleActionDone(msg)
	case clearMessageMsg:
		m.message = ""
	}
	return m, nil
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	}
	if m.loading || m.busy != "" {
		return m, nil
	}
	if m.error != "" {
		// Any key dismisses an error and reloads.
		m.error = ""
		m.loading = true
		return m, tea.Batch(m.loadChain(), m.spinner.Tick)
	}

	switch msg.String() {
	case "up", "k":
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case "down", "j":
		if m.selectedIndex < len(m.layers)-1 {
			m.selectedIndex++
		}
	case "shift+up", "K":
		if m.selectedIndex > 0 {
			return m.start("Moving", m.move(m.selectedIndex, m.selectedIndex-1))
		}
	case "shift+down", "J":
		if m.selectedIndex < len(m.layers)-1 {
			return m.start("Moving", m.move(m.selectedIndex, m.selectedIndex+1))
		}
	case " ":
		if len(m.layers) > 0 {
			return m.start("Saving", m.toggle(m.selectedIndex))
		}
	case "d":
		return m.start("Deploying", m.deploy())
	case "u":
		return m.start("Undeploying", m.undeploy())
	case "r":
		m.loading = true
		return m, tea.Batch(m.loadChain(), m.spinner.Tick)
	}
	return m, nil
}

func (m Model) start(busy string, action tea.Cmd) (tea.Model, tea.Cmd) {
	m.busy = busy
	return m, tea.Batch(action, m.spinner.Tick)
}

func (m *Model) handleChainLoaded(msg chainLoadedMsg) {
	m.layers = msg.layers
	m.state = msg.state
	m.loading = false
	if msg.selected >= 0 {
		m.selectedIndex = msg.selected
	}
	if m.selectedIndex >= len(m.layers) {
		m.selectedIndex = len(m.layers) - 1
	}
	if m.selectedIndex < 0 {
		m.selectedIndex = 0
	}
}

func (m Model) handleActionDone(msg actionDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = ""
	m.message = msg.message
	m.handleChainLoaded(msg.chainLoadedMsg)
	return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearMessageMsg{}
	})
}

// View renders the UI
func (m Model) View() string {
	if m.loading {
		return m.spinner.View() + " " + lipgloss.NewStyle().Foreground(lipgloss.Color(ui.ColorAccent)).Bold(true).Render("Loading load order...") + "\n"
	}
	if m.error != "" {
		return fmt.Sprintf("Error: %s\n\n%s\n", m.error, renderHint("press any key to reload, q to quit"))
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if len(m.layers) == 0 {
		b.WriteString("No mods in this profile. Add some with 'barnacle order add'.\n")
	}
	for i, l := range m.layers {
		b.WriteString(m.renderModRow(i, l))
		b.WriteString("\n")
	}
	b.WriteString("\n" + renderFooter())

	if m.busy != "" {
		b.WriteString("\n" + m.spinner.View() + " " + m.busy + "...")
	} else if m.message != "" {
		b.WriteString("\n" + ui.Colorize(m.message, ui.ColorGood))
	}
	return b.String()
}

func (m Model) renderHeader() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ui.ColorAccent)).
		Padding(0, 1)

	title := fmt.Sprintf("%s / %s", m.game.Name, m.profile.Name)
	return headerStyle.Render(fmt.Sprintf("%-50s", title)) + ui.State(m.state) + "\n" +
		headerStyle.Render(fmt.Sprintf("%-5s %-3s %-40s %s", "Pos", "On", "Mod", "Notes"))
}

func renderHint(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(ui.ColorMuted)).
		Italic(true).
		Render(text)
}

func renderFooter() string {
	return renderHint("↑/k ↓/j: select  K/J: move  space: enable/disable  d: deploy  u: undeploy  r: reload  q: quit")
}

func (m Model) renderModRow(index int, l loadorder.Layer) string {
	rowStyle := lipgloss.NewStyle().Padding(0, 1)
	if index == m.selectedIndex {
		rowStyle = rowStyle.
			Background(lipgloss.Color(ui.ColorMuted)).
			Bold(true)
	}

	name := truncate(l.Mod.Name, 40)
	if !l.Entry.Enabled {
		name = lipgloss.NewStyle().Faint(true).Render(fmt.Sprintf("%-40s", name))
	} else {
		name = fmt.Sprintf("%-40s", name)
	}

	row := fmt.Sprintf("%-5d %s   %s %s",
		l.Entry.Position,
		ui.EnabledMark(l.Entry.Enabled),
		name,
		truncate(l.Entry.Notes, 30),
	)
	return rowStyle.Render(row)
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}

// Message types
type chainLoadedMsg struct {
	layers   []loadorder.Layer
	state    deploy.State
	selected int // Row to select, or -1 to keep the current one
}

type errorMsg string

type actionDoneMsg struct {
	chainLoadedMsg
	message string
}

type clearMessageMsg struct{}

func (m Model) fetchChain(selected int) (chainLoadedMsg, error) {
	layers, err := m.lib.Chain(m.ctx, m.profile)
	if err != nil {
		return chainLoadedMsg{}, err
	}
	state, _, err := m.lib.Status(m.ctx, m.game)
	if err != nil {
		return chainLoadedMsg{}, err
	}
	return chainLoadedMsg{layers: layers, state: state, selected: selected}, nil
}

func (m Model) loadChain() tea.Cmd {
	return func() tea.Msg {
		loaded, err := m.fetchChain(-1)
		if err != nil {
			logger.Log.Errorw("Failed to load load order", zap.String("profile", m.profile.Name), zap.Error(err))
			return errorMsg(err.Error())
		}
		return loaded
	}
}

// edit runs fn against the chain the user is looking at. If another process
// changed the load order since it was loaded the edit is dropped and the
// fresh order shown instead.
func (m Model) edit(selected int, message string, fn func(order loadorder.Editor) error) tea.Cmd {
	shown := m.layers
	return func() tea.Msg {
		err := fn(m.lib.Order().Expect(shown))
		if errs.HasCode(err, errs.CodeChainMutated) {
			message = "Load order changed elsewhere, reloaded"
			selected = -1
		} else if err != nil {
			logger.Log.Warnw("Load order edit failed", zap.String("profile", m.profile.Name), zap.Error(err))
			return errorMsg(err.Error())
		}
		loaded, err := m.fetchChain(selected)
		if err != nil {
			return errorMsg(err.Error())
		}
		return actionDoneMsg{chainLoadedMsg: loaded, message: message}
	}
}

func (m Model) move(from, to int) tea.Cmd {
	l := m.layers[from]
	return m.edit(to, fmt.Sprintf("Moved %s to %d", l.Mod.Name, to), func(order loadorder.Editor) error {
		return order.Move(m.ctx, m.profile.ID, l.Entry.ID, to)
	})
}

func (m Model) toggle(index int) tea.Cmd {
	l := m.layers[index]
	enabled := !l.Entry.Enabled
	verb := "Disabled"
	if enabled {
		verb = "Enabled"
	}
	return m.edit(index, verb+" "+l.Mod.Name, func(order loadorder.Editor) error {
		return order.SetEnabled(m.ctx, m.profile.ID, l.Entry.ID, enabled)
	})
}

func (m Model) deploy() tea.Cmd {
	return func() tea.Msg {
		mount, err := m.lib.Redeploy(m.ctx, m.profile)
		if err != nil {
			logger.Log.Warnw("Deploy failed", zap.String("profile", m.profile.Name), zap.Error(err))
			return errorMsg(err.Error())
		}
		loaded, err := m.fetchChain(-1)
		if err != nil {
			return errorMsg(err.Error())
		}
		return actionDoneMsg{
			chainLoadedMsg: loaded,
			message:        fmt.Sprintf("Deployed %d mods over %s", len(mount.Layers), mount.Handle.Target),
		}
	}
}

func (m Model) undeploy() tea.Cmd {
	return func() tea.Msg {
		if err := m.lib.Undeploy(m.ctx, m.profile); err != nil {
			logger.Log.Warnw("Undeploy failed", zap.String("profile", m.profile.Name), zap.Error(err))
			return errorMsg(err.Error())
		}
		loaded, err := m.fetchChain(-1)
		if err != nil {
			return errorMsg(err.Error())
		}
		return actionDoneMsg{chainLoadedMsg: loaded, message: "Undeployed " + m.profile.Name}
	}
}
