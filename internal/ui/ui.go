package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/dooseok913/music-front/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	StatusView ViewState = iota
	DeviceLoginView
	SyncView
	LibraryView
	TrackListView
	ResultView
)

// Mode selects how far the TUI goes.
type Mode int

const (
	// LoginOnly runs a device login and exits.
	LoginOnly Mode = iota
	// LoginAndSync logs in when needed, then synchronizes and shows the library.
	LoginAndSync
)

// Engine is the part of [tasks.LibraryEngine] the TUI drives.
type Engine interface {
	InitDeviceAuth(ctx context.Context) (*models.DeviceAuthorization, error)
	DevicePoller(d *models.DeviceAuthorization) *auth.Poller
	Run(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.SyncResult, error)
	AuthStatus(ctx context.Context) auth.Status
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	mode         Mode
	view         ViewState
	engine       Engine
	width        int
	height       int
	spinner      spinner.Model
	device       *models.DeviceAuthorization
	poller       *auth.Poller
	login        *models.DevicePollResult
	progressChan chan tasks.ProgressUpdate
	syncDone     chan Msg
	progress     tasks.ProgressUpdate
	result       *models.SyncResult
	playlistList list.Model
	trackList    list.Model
	canceled     bool
	warning      error
	err          error
	help         help.Model
	keys         keyMap
	openURL      func(string) error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, engine Engine, mode Mode) *Model {
	ctx, cancel := context.WithCancel(ctx)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:     ctx,
		cancel:  cancel,
		mode:    mode,
		view:    StatusView,
		engine:  engine,
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
		openURL: shared.OpenBrowser,
	}
}

// Login is the authorized poll result, if the device login completed.
func (m *Model) Login() *models.DevicePollResult { return m.login }

// Result is the last synchronization result.
func (m *Model) Result() *models.SyncResult { return m.result }

// Err is the error that ended the session, nil when it ended normally.
func (m *Model) Err() error { return m.err }

// Canceled reports whether the user quit before the login completed.
func (m *Model) Canceled() bool { return m.canceled }

// State returns the current view.
func (m *Model) State() ViewState { return m.view }

// Init checks credentials (or goes straight to a device login) and starts the spinner.
func (m *Model) Init() tea.Cmd {
	if m.mode == LoginOnly {
		return tea.Batch(m.spinner.Tick, m.startDevice())
	}
	return tea.Batch(m.spinner.Tick, m.checkStatus())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.result != nil {
			m.playlistList.SetSize(m.listSize())
		}
		if m.view == TrackListView {
			m.trackList.SetSize(m.listSize())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgStatus:
		if msg.data.(auth.Status).UserConnected {
			return m, m.startSync()
		}
		return m, m.startDevice()

	case MsgDeviceStarted:
		d := msg.data.(deviceStarted)
		if d.err != nil {
			m.err = d.err
			m.view = ResultView
			return m, nil
		}
		m.device, m.poller = d.device, d.poller
		m.view = DeviceLoginView
		return m, waitForLogin(d.out)

	case MsgLoginComplete:
		outcome := msg.data.(auth.PollOutcome)
		m.poller = nil
		if outcome.Err != nil {
			if errors.Is(outcome.Err, shared.ErrPollCanceled) {
				m.canceled = true
				return m, tea.Quit
			}
			m.err = outcome.Err
			m.view = ResultView
			return m, nil
		}
		m.login = outcome.Result
		if m.mode == LoginOnly {
			m.view = ResultView
			return m, nil
		}
		return m, m.startSync()

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgSyncComplete:
		done := msg.data.(syncComplete)
		m.progressChan, m.syncDone = nil, nil
		if done.result == nil {
			m.err = done.err
			m.view = ResultView
			return m, nil
		}
		m.result = done.result
		m.warning = done.err
		m.playlistList = list.New(playlistItems(done.result), list.NewDefaultDelegate(), 0, 0)
		m.playlistList.SetSize(m.listSize())
		m.playlistList.Title = fmt.Sprintf("TIDAL library • %s (%s)", done.result.Identity.UserID, done.result.Identity.CountryCode)
		m.view = LibraryView
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, m.quit()
	}

	switch m.view {
	case DeviceLoginView:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, m.quit()
		case key.Matches(msg, m.keys.open):
			if err := m.openURL(m.verificationURL()); err != nil {
				m.warning = err
			}
		}
		return m, nil

	case StatusView, SyncView:
		if key.Matches(msg, m.keys.quit) {
			return m, m.quit()
		}
		return m, nil

	case LibraryView:
		if m.playlistList.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, m.quit()
		case key.Matches(msg, m.keys.resync):
			return m, m.startSync()
		case key.Matches(msg, m.keys.enter):
			if item, ok := m.playlistList.SelectedItem().(playlistItem); ok && item.failure == "" {
				m.trackList = list.New(trackItems(item.tracks), list.NewDefaultDelegate(), 0, 0)
				m.trackList.SetSize(m.listSize())
				m.trackList.Title = fmt.Sprintf("Tracks in '%s'", item.playlist.Title)
				m.view = TrackListView
			}
			return m, nil
		}

	case TrackListView:
		if m.trackList.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, m.quit()
		case key.Matches(msg, m.keys.back):
			m.view = LibraryView
			return m, nil
		}

	case ResultView:
		switch {
		case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.enter):
			return m, m.quit()
		case key.Matches(msg, m.keys.resync) && m.mode == LoginAndSync:
			m.err = nil
			m.view = StatusView
			return m, m.checkStatus()
		}
		return m, nil
	}

	return m.updateLists(msg)
}

// quit stops any device poll and in-flight sync before exiting.
func (m *Model) quit() tea.Cmd {
	if m.poller != nil {
		m.poller.Cancel()
		m.canceled = true
	}
	m.cancel()
	return tea.Quit
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case LibraryView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) listSize() (int, int) {
	return max(m.width-4, 0), max(m.height-6, 0)
}

func (m *Model) verificationURL() string {
	if m.device == nil {
		return ""
	}
	if m.device.VerificationURIComplete != "" {
		return m.device.VerificationURIComplete
	}
	return m.device.VerificationURI
}

func (m *Model) checkStatus() tea.Cmd {
	return func() tea.Msg {
		return statusMsg(m.engine.AuthStatus(m.ctx))
	}
}

func (m *Model) startDevice() tea.Cmd {
	m.view = StatusView
	return func() tea.Msg {
		d, err := m.engine.InitDeviceAuth(m.ctx)
		if err != nil {
			return deviceStartedMsg(deviceStarted{err: err})
		}
		p := m.engine.DevicePoller(d)
		out, err := p.Start(m.ctx)
		return deviceStartedMsg(deviceStarted{device: d, poller: p, out: out, err: err})
	}
}

func waitForLogin(out <-chan auth.PollOutcome) tea.Cmd {
	return func() tea.Msg {
		return loginCompleteMsg(<-out)
	}
}

func (m *Model) startSync() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan Msg, 1)
	m.progressChan, m.syncDone = progress, done
	m.progress = tasks.ProgressUpdate{Message: "Starting..."}
	m.warning = nil
	m.view = SyncView

	go func() {
		result, err := m.engine.Run(m.ctx, progress)
		close(progress)
		done <- syncCompleteMsg(result, err)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.syncDone
	if progress == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case StatusView:
		return fmt.Sprintf("%s Checking TIDAL credentials...\n", m.spinner.View())
	case DeviceLoginView:
		return m.renderDeviceLogin()
	case SyncView:
		return m.renderSync()
	case LibraryView:
		return m.renderLibrary()
	case TrackListView:
		helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
		return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderDeviceLogin() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Connect your TIDAL account"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "1. Visit %s\n", m.device.VerificationURI)
	b.WriteString("2. Enter this code:\n\n")
	b.WriteString(styles.code.Render(m.device.UserCode))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s Waiting for authorization (code expires in %s)\n", m.spinner.View(), shared.FormatDuration(m.device.Window()))
	if m.warning != nil {
		b.WriteString(styles.warn.Render(fmt.Sprintf("Could not open browser: %v", m.warning)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.open, m.keys.quit}))
	return b.String()
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Synchronizing TIDAL library")

	var phase string
	switch m.progress.Phase {
	case tasks.ResolveIdentity:
		phase = "Resolving account"
	case tasks.ListPlaylists:
		phase = "Listing playlists"
	case tasks.FetchTracks:
		phase = fmt.Sprintf("Fetching tracks (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.Persist:
		phase = "Saving library"
	}

	return fmt.Sprintf("%s\n%s %s\n%s\n\n%s", title, m.spinner.View(), phase, m.progress.Message, m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}

func (m *Model) renderLibrary() string {
	var status string
	r := m.result
	switch {
	case m.warning != nil:
		status = styles.warn.Render(fmt.Sprintf("⚠ %v", m.warning))
	case len(r.PartialFailures) > 0:
		status = styles.warn.Render(fmt.Sprintf("⚠ %d of %d playlists could not be fetched", len(r.PartialFailures), len(r.Playlists)))
	case len(r.Playlists) == 0:
		status = styles.warn.Render("No playlists found")
	default:
		status = styles.ok.Render(fmt.Sprintf("✓ %d playlists, %d tracks", len(r.Playlists), r.TrackCount()))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.resync, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", m.playlistList.View(), status, helpView)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		msg := fmt.Sprintf("Error: %v", m.err)
		switch {
		case errors.Is(m.err, shared.ErrDeviceExpired):
			msg = "The code expired before it was entered. Run the login again."
		case errors.Is(m.err, shared.ErrDeviceDenied):
			msg = "Authorization was denied."
		}
		keys := []key.Binding{m.keys.quit}
		if m.mode == LoginAndSync {
			keys = []key.Binding{m.keys.resync, m.keys.quit}
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), m.help.ShortHelpView(keys))
	}

	title := styles.ok.Render("✓ TIDAL connected")
	var who string
	if m.login != nil && m.login.Identity != nil {
		who = fmt.Sprintf("\nUser: %s\nCountry: %s", m.login.Identity.UserID, m.login.Identity.CountryCode)
	} else {
		who = "\n" + styles.warn.Render("Connected, but the account could not be identified yet.")
	}
	return fmt.Sprintf("%s\n%s\n\n%s", title, who, m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}
