package formatter

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
)

// ManifestFile is written at the root of every library export.
const ManifestFile = "manifest.json"

// Manifest describes a library export: who it belongs to and which file holds each playlist.
type Manifest struct {
	Identity   models.ResolvedIdentity `json:"identity"`
	Format     Format                  `json:"format"`
	Status     string                  `json:"status"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt time.Time               `json:"finishedAt"`
	Playlists  []ManifestEntry         `json:"playlists"`
	Failures   []models.PartialFailure `json:"failures"`
}

// ManifestEntry locates one exported playlist.
type ManifestEntry struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	File       string `json:"file"`
	TrackCount int    `json:"trackCount"`
	Virtual    bool   `json:"virtual,omitempty"`
}

// LibraryExportResult lists what [WriteLibraryExport] wrote.
type LibraryExportResult struct {
	Directory string
	Manifest  string
	Files     []string
}

type exportOptions struct {
	covers *http.Client
	logger *log.Logger
}

// ExportOption configures [WriteLibraryExport].
type ExportOption func(*exportOptions)

// WithCoverImages downloads playlist covers next to Markdown exports.
func WithCoverImages(client *http.Client) ExportOption {
	return func(o *exportOptions) {
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		o.covers = client
	}
}

// WithExportLogger reports skipped covers to logger.
func WithExportLogger(logger *log.Logger) ExportOption {
	return func(o *exportOptions) { o.logger = logger }
}

// WriteLibraryExport writes one file per fetched playlist plus a manifest into dir.
//
// Playlists listed as partial failures get no file and appear under the
// manifest's failures. Markdown exports use a directory per playlist
// ({dir}/{name}/README.md, with cover.jpg when covers are enabled).
func WriteLibraryExport(result *models.SyncResult, format Format, dir string, opts ...ExportOption) (*LibraryExportResult, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nothing to export", shared.ErrInvalidArgument)
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}

	o := exportOptions{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(&o)
	}

	if dir == "" {
		dir = "tidal-export-" + result.StartedAt.Format("20060102-150405")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	out := &LibraryExportResult{Directory: dir, Files: []string{}}
	manifest := Manifest{
		Identity:   result.Identity,
		Format:     format,
		Status:     result.Status(),
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Playlists:  []ManifestEntry{},
		Failures:   result.PartialFailures,
	}
	if manifest.Failures == nil {
		manifest.Failures = []models.PartialFailure{}
	}

	used := map[string]int{}
	for _, p := range result.Playlists {
		tracks, ok := result.TracksByPlaylistID[p.ID]
		if !ok {
			continue
		}

		base := uniqueName(used, FileName(p))
		export := &PlaylistExport{Playlist: p, Tracks: tracks}

		files, err := writePlaylist(export, format, dir, base, &o)
		if err != nil {
			return nil, fmt.Errorf("playlist %s: %w", p.ID, err)
		}
		out.Files = append(out.Files, files...)

		rel, _ := filepath.Rel(dir, files[len(files)-1])
		manifest.Playlists = append(manifest.Playlists, ManifestEntry{
			ID:         p.ID,
			Title:      p.Title,
			File:       filepath.ToSlash(rel),
			TrackCount: len(tracks),
			Virtual:    p.IsVirtual(),
		})
	}

	data, err := shared.MarshalJSON(manifest, true)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	out.Manifest = filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(out.Manifest, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	return out, nil
}

// writePlaylist returns the files it created; the primary file is last.
func writePlaylist(export *PlaylistExport, format Format, dir, base string, o *exportOptions) ([]string, error) {
	var (
		data []byte
		err  error
		ext  string
	)

	switch format {
	case FormatMarkdown:
		return writeMarkdown(export, filepath.Join(dir, base), o)
	case FormatCSV:
		data, err = ExportToCSV(export)
		ext = ".csv"
	case FormatText:
		data, err = ExportToText(export)
		ext = ".txt"
	default:
		data, err = ExportToJSON(export)
		ext = ".json"
	}
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, base+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return []string{path}, nil
}

func writeMarkdown(export *PlaylistExport, dir string, o *exportOptions) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	files := []string{}
	cover := ""
	if o.covers != nil && export.Playlist.ImageURL != "" {
		imageData, err := DownloadImage(o.covers, export.Playlist.ImageURL)
		if err != nil {
			o.logger.Warn("skipping cover image", "playlist_id", export.Playlist.ID, "error", err)
		} else {
			path := filepath.Join(dir, "cover.jpg")
			if err := os.WriteFile(path, imageData, 0644); err != nil {
				o.logger.Warn("failed to save cover image", "playlist_id", export.Playlist.ID, "error", err)
			} else {
				cover = "cover.jpg"
				files = append(files, path)
			}
		}
	}

	data, err := ExportToMarkdown(export, cover)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return append(files, path), nil
}

// FileName derives a file system safe base name from the playlist title,
// falling back to its id.
func FileName(p models.ExternalPlaylist) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(p.Title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = strings.NewReplacer(":", "-", "/", "-", "\\", "-").Replace(p.ID)
	}
	if r := []rune(name); len(r) > 80 {
		name = strings.TrimRight(string(r[:80]), "-")
	}
	return name
}

func uniqueName(used map[string]int, name string) string {
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s-%d", name, n)
	}
	return name
}
