// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI drives a TIDAL login and library synchronization:
//  1. [StatusView] : Check stored credentials
//  2. [DeviceLoginView] : Show the verification link and user code while the device poller runs
//  3. [SyncView] : Monitor progress updates from the sync engine
//  4. [LibraryView] : Browse synchronized playlists, failures included
//  5. [TrackListView] : Browse one playlist's tracks
//  6. [ResultView] : Login outcome or the error that ended the session
//
// [LoginOnly] stops after the device login; [LoginAndSync] continues into a sync.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Quitting during a login cancels the device poller, so no poll is sent after the program exits.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, o, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
