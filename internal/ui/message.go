package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dooseok913/music-front/internal/auth"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgStatus MsgKind = iota
	MsgDeviceStarted
	MsgLoginComplete
	MsgProgressUpdate
	MsgSyncComplete
)

type deviceStarted struct {
	device *models.DeviceAuthorization
	poller *auth.Poller
	out    <-chan auth.PollOutcome
	err    error
}

type syncComplete struct {
	result *models.SyncResult
	err    error
}

// statusMsg is the constructor for [MsgStatus]
func statusMsg(status auth.Status) Msg {
	return Msg{kind: MsgStatus, data: status}
}

// deviceStartedMsg is the constructor for [MsgDeviceStarted]
func deviceStartedMsg(d deviceStarted) Msg {
	return Msg{kind: MsgDeviceStarted, data: d}
}

// loginCompleteMsg is the constructor for [MsgLoginComplete]
func loginCompleteMsg(outcome auth.PollOutcome) Msg {
	return Msg{kind: MsgLoginComplete, data: outcome}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *models.SyncResult, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: syncComplete{result, err}}
}
