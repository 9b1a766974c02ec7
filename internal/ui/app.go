package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/roomboard/internal/logtail"
	"github.com/five82/roomboard/internal/prefs"
	"github.com/five82/roomboard/internal/rooms"
	"github.com/five82/roomboard/internal/roomsync"
	"github.com/five82/roomboard/internal/state"
	"github.com/five82/roomboard/internal/stream"
)

// View selects which projection of the registry is shown.
type View int

const (
	ViewBroker View = iota
	ViewOperator
)

func (v View) String() string {
	if v == ViewOperator {
		return "operator"
	}
	return "broker"
}

// ParseView accepts "broker" or "operator"; empty means broker.
func ParseView(value string) (View, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "broker":
		return ViewBroker, nil
	case "operator":
		return ViewOperator, nil
	default:
		return ViewBroker, fmt.Errorf("unknown view %q (want broker or operator)", value)
	}
}

// Controller is the part of the sync core the views drive.
type Controller interface {
	SetStatus(ctx context.Context, id string, status rooms.Status) (*roomsync.Command, error)
	Reload(ctx context.Context) error
	StreamState() stream.State
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Registry   *state.Registry
	Controller Controller
	View       View
	ThemeName  string
	PrefsPath  string
	LogPath    string
	APIBase    string
	Tick       time.Duration // header and activity refresh; zero uses 1s
}

const (
	activityLines  = 200
	activityHeight = 8
	defaultTick    = time.Second
)

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx        context.Context
	registry   *state.Registry
	controller Controller
	prefsPath  string
	logPath    string
	apiBase    string
	tick       time.Duration

	changes     <-chan struct{}
	unsubscribe func()

	keys  keyMap
	help  help.Model
	theme Theme
	view  View

	width  int
	height int
	ready  bool

	snapshot    state.Snapshot
	streamState stream.State
	cursor      int
	pending     map[string]int
	notice      string
	noticeErr   bool

	activity     viewport.Model
	showActivity bool
	showHelp     bool
}

// New creates a new Bubble Tea model. It subscribes to registry changes;
// the subscription ends when the program quits.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	themeName := opts.ThemeName
	if themeName == "" {
		themeName = themeOrder[0]
	}

	m := Model{
		ctx:        ctx,
		registry:   opts.Registry,
		controller: opts.Controller,
		prefsPath:  opts.PrefsPath,
		logPath:    opts.LogPath,
		apiBase:    opts.APIBase,
		tick:       tick,
		keys:       DefaultKeyMap().withView(opts.View),
		help:       help.New(),
		theme:      GetTheme(themeName),
		view:       opts.View,
		pending:    make(map[string]int),
		activity:   viewport.New(0, activityHeight),
	}
	if m.registry != nil {
		m.changes, m.unsubscribe = m.registry.Subscribe()
		m.snapshot = m.registry.Snapshot()
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.tick)}
	if m.registry != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.registry), waitForChangeCmd(m.changes, m.registry))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.activity.Width = msg.Width
		m.ready = true
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.cursor = clampCursor(m.cursor, len(m.snapshot.Rooms))
		return m, nil

	case changeMsg:
		// The registry changed; read it and wait for the next change.
		m.snapshot = state.Snapshot(msg)
		m.cursor = clampCursor(m.cursor, len(m.snapshot.Rooms))
		return m, waitForChangeCmd(m.changes, m.registry)

	case commandStartedMsg:
		m.pending[msg.cmd.RoomID]++
		m.setNotice(fmt.Sprintf("%s → %s", m.roomName(msg.cmd.RoomID), msg.cmd.Status.Label()), false)
		return m, waitCommandCmd(m.ctx, msg.cmd)

	case commandDoneMsg:
		if m.pending[msg.roomID] <= 1 {
			delete(m.pending, msg.roomID)
		} else {
			m.pending[msg.roomID]--
		}
		m.setNotice(describeOutcome(m.roomName(msg.roomID), msg), msg.outcome != roomsync.OutcomeReconciled)
		return m, nil

	case reloadDoneMsg:
		if msg.err != nil {
			m.setNotice("reload failed: "+msg.err.Error(), true)
		} else {
			m.setNotice("reloaded", false)
		}
		return m, nil

	case errMsg:
		m.setNotice(msg.err.Error(), true)
		return m, nil

	case activityMsg:
		lines := make([]string, 0, len(msg))
		for _, e := range msg {
			lines = append(lines, e.String())
		}
		m.activity.SetContent(strings.Join(lines, "\n"))
		m.activity.GotoBottom()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

func (m Model) roomName(id string) string {
	if room, ok := m.snapshot.Room(id); ok && room.Name != "" {
		return room.Name
	}
	return id
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.ToggleView):
		if m.view == ViewBroker {
			m.view = ViewOperator
		} else {
			m.view = ViewBroker
		}
		m.keys = DefaultKeyMap().withView(m.view)
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.ToggleEvents):
		m.showActivity = !m.showActivity
		if m.showActivity {
			return m, loadActivityCmd(m.logPath)
		}
		return m, nil

	case key.Matches(msg, m.keys.Reload):
		if m.controller == nil {
			return m, nil
		}
		m.setNotice("reloading…", false)
		return m, reloadCmd(m.ctx, m.controller)
	}

	if m.view == ViewOperator {
		return m.handleOperatorKey(msg)
	}
	return m, nil
}

// handleOperatorKey moves the cursor and issues status commands.
func (m Model) handleOperatorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.snapshot.Rooms)
	if count == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.cursor = clampCursor(m.cursor+1, count)
	case key.Matches(msg, m.keys.Up):
		m.cursor = clampCursor(m.cursor-1, count)
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = count - 1
	case key.Matches(msg, m.keys.SetAvailable):
		return m, m.setStatus(rooms.StatusAvailable)
	case key.Matches(msg, m.keys.SetGuiding):
		return m, m.setStatus(rooms.StatusGuiding)
	case key.Matches(msg, m.keys.SetContracted):
		return m, m.setStatus(rooms.StatusContracted)
	}
	return m, nil
}

func (m Model) setStatus(status rooms.Status) tea.Cmd {
	if m.controller == nil {
		return nil
	}
	rows := OperatorRows(m.snapshot, m.cursor, m.pending)
	if len(rows) == 0 {
		return nil
	}
	return setStatusCmd(m.ctx, m.controller, rows[clampCursor(m.cursor, len(rows))].ID, status)
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	_ = prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, View: m.view.String()})
}

// handleTick refreshes the stream state and the activity pane.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	if m.controller != nil {
		m.streamState = m.controller.StreamState()
	}
	cmds := []tea.Cmd{tickCmd(m.tick)}
	if m.showActivity {
		cmds = append(cmds, loadActivityCmd(m.logPath))
	}
	return m, tea.Batch(cmds...)
}

func describeOutcome(name string, msg commandDoneMsg) string {
	switch msg.outcome {
	case roomsync.OutcomeReconciled:
		return fmt.Sprintf("%s confirmed %s", name, msg.confirmed.Label())
	case roomsync.OutcomeResynced:
		return fmt.Sprintf("%s: server reply unclear, reloaded", name)
	case roomsync.OutcomeResyncFailed:
		return fmt.Sprintf("%s: update failed and reload failed", name)
	case roomsync.OutcomeDiscarded:
		return fmt.Sprintf("%s: result discarded", name)
	default:
		if msg.err != nil {
			return fmt.Sprintf("%s: %v", name, msg.err)
		}
		return name
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type changeMsg state.Snapshot

type commandStartedMsg struct {
	cmd *roomsync.Command
}

type commandDoneMsg struct {
	roomID    string
	outcome   roomsync.Outcome
	confirmed rooms.Status
	err       error
}

type reloadDoneMsg struct {
	err error
}

type errMsg struct {
	err error
}

type activityMsg []logtail.Entry

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(registry *state.Registry) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(registry.Snapshot())
	}
}

// waitForChangeCmd blocks until the registry signals a change. It returns
// nil once the subscription is closed.
func waitForChangeCmd(changes <-chan struct{}, registry *state.Registry) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changeMsg(registry.Snapshot())
	}
}

func setStatusCmd(ctx context.Context, c Controller, id string, status rooms.Status) tea.Cmd {
	return func() tea.Msg {
		cmd, err := c.SetStatus(ctx, id, status)
		if err != nil {
			return errMsg{err: fmt.Errorf("set status: %w", err)}
		}
		return commandStartedMsg{cmd: cmd}
	}
}

func waitCommandCmd(ctx context.Context, cmd *roomsync.Command) tea.Cmd {
	return func() tea.Msg {
		outcome, err := cmd.Wait(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return commandDoneMsg{
			roomID:    cmd.RoomID,
			outcome:   outcome,
			confirmed: cmd.Confirmed(),
			err:       err,
		}
	}
}

func reloadCmd(ctx context.Context, c Controller) tea.Cmd {
	return func() tea.Msg {
		return reloadDoneMsg{err: c.Reload(ctx)}
	}
}

func loadActivityCmd(path string) tea.Cmd {
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := logtail.ReadEntries(path, activityLines)
		if err != nil {
			return errMsg{err: err}
		}
		return activityMsg(entries)
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
