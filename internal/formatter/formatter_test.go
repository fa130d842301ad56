package formatter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dooseok913/music-front/internal/models"
	"github.com/dooseok913/music-front/internal/shared"
	th "github.com/dooseok913/music-front/internal/testing"
)

func sampleExport() *PlaylistExport {
	return &PlaylistExport{
		Playlist: models.ExternalPlaylist{
			ID:          "test123",
			Title:       "Test Playlist",
			Description: "A test playlist",
			TrackCount:  2,
			Creator:     "Tester",
		},
		Tracks: []models.ExternalTrack{
			{ID: "track1", Title: "Song One", Artist: "Artist One", Album: "Album One", Duration: 180 * time.Second, ISRC: "USRC12345678"},
			{ID: "track2", Title: "Song Two", Artist: "Artist Two", Duration: 240 * time.Second, ISRC: "USRC87654321"},
		},
	}
}

func sampleResult() *models.SyncResult {
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	r := models.NewSyncResult(models.ResolvedIdentity{UserID: "user-1", CountryCode: "US"}, started)
	e := sampleExport()
	r.Playlists = []models.ExternalPlaylist{
		e.Playlist,
		{ID: "dup", Title: "Test Playlist"},
		{ID: "broken", Title: "Broken"},
		{ID: models.VirtualPlaylistPrefix + "favorites", Title: "", Virtual: true},
	}
	r.TracksByPlaylistID["test123"] = e.Tracks
	r.TracksByPlaylistID["dup"] = e.Tracks[:1]
	r.TracksByPlaylistID[models.VirtualPlaylistPrefix+"favorites"] = e.Tracks[1:]
	r.PartialFailures = []models.PartialFailure{{PlaylistID: "broken", Title: "Broken", Error: "status 500"}}
	r.FinishedAt = started.Add(time.Minute)
	return r
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleExport())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "ID,Title,Artist,Album,Duration,ISRC") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "track1,Song One,Artist One,Album One,180,USRC12345678") {
			t.Errorf("CSV missing track1 row, got: %s", output)
		}
		if !strings.Contains(output, "track2,Song Two,Artist Two,,240,USRC87654321") {
			t.Errorf("CSV missing track2 row, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		t.Run("without cover image", func(t *testing.T) {
			data, err := ExportToMarkdown(sampleExport(), "")
			if err != nil {
				t.Fatalf("ExportToMarkdown failed: %v", err)
			}

			output := string(data)
			for _, want := range []string{
				"# Test Playlist",
				"**Description**: A test playlist",
				"**Tracks**: 2",
				"**Creator**: Tester",
				"1. Artist One - Song One (Album One) [3:00]",
				"2. Artist Two - Song Two [4:00]",
			} {
				if !strings.Contains(output, want) {
					t.Errorf("Markdown missing %q, got:\n%s", want, output)
				}
			}
			if strings.Contains(output, "![Cover]") {
				t.Error("Markdown should not reference a cover image")
			}
		})

		t.Run("with cover image", func(t *testing.T) {
			data, err := ExportToMarkdown(sampleExport(), "cover.jpg")
			if err != nil {
				t.Fatalf("ExportToMarkdown failed: %v", err)
			}
			if !strings.Contains(string(data), "![Cover](cover.jpg)") {
				t.Error("Markdown missing cover image reference")
			}
		})
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(sampleExport())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Playlist: Test Playlist") {
			t.Errorf("Text missing playlist name, got: %s", output)
		}
		if !strings.Contains(output, "Tracks: 2") {
			t.Errorf("Text missing track count, got: %s", output)
		}
		if !strings.Contains(output, "2. Artist Two - Song Two") {
			t.Errorf("Text missing track line, got: %s", output)
		}
	})

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(sampleExport())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var decoded PlaylistExport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Playlist.ID != "test123" || len(decoded.Tracks) != 2 {
			t.Errorf("unexpected export: %+v", decoded)
		}
	})

	t.Run("ExportToJSON without tracks", func(t *testing.T) {
		data, err := ExportToJSON(&PlaylistExport{Playlist: models.ExternalPlaylist{ID: "p"}})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), `"tracks": []`) {
			t.Errorf("expected empty tracks array, got: %s", data)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatJSON},
		{"JSON", FormatJSON},
		{"csv", FormatCSV},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{"text", FormatText},
		{"txt", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestDownloadImage(t *testing.T) {
	t.Run("EmptyURL", func(t *testing.T) {
		if _, err := DownloadImage(nil, ""); err == nil {
			t.Error("DownloadImage with empty URL should return error")
		}
	})

	t.Run("Success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("jpegdata"))
		}))
		defer srv.Close()

		data, err := DownloadImage(srv.Client(), srv.URL+"/cover.jpg")
		if err != nil {
			t.Fatalf("DownloadImage failed: %v", err)
		}
		if string(data) != "jpegdata" {
			t.Errorf("unexpected body %q", data)
		}
	})

	t.Run("NonOKStatus", func(t *testing.T) {
		client := &http.Client{Transport: th.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil)}

		_, err := DownloadImage(client, "https://resources.tidal.com/missing.jpg")
		if err == nil || !strings.Contains(err.Error(), "status 404") {
			t.Errorf("expected status error, got %v", err)
		}
	})

	t.Run("TransportError", func(t *testing.T) {
		client := &http.Client{Transport: th.NewMockRoundTripper(nil, errors.New("dial failed"))}
		if _, err := DownloadImage(client, "https://resources.tidal.com/x.jpg"); err == nil {
			t.Error("expected transport error")
		}
	})

	t.Run("ReadError", func(t *testing.T) {
		client := &http.Client{Transport: th.NewMockRoundTripper(&http.Response{
			StatusCode: http.StatusOK,
			Body:       &th.FCloser{},
		}, nil)}

		_, err := DownloadImage(client, "https://resources.tidal.com/x.jpg")
		if err == nil || !strings.Contains(err.Error(), "failed to read image data") {
			t.Errorf("expected read error, got %v", err)
		}
	})
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name     string
		playlist models.ExternalPlaylist
		want     string
	}{
		{"title", models.ExternalPlaylist{ID: "1", Title: "Road Trip!! 2024"}, "road-trip-2024"},
		{"unicode", models.ExternalPlaylist{ID: "1", Title: "밤 노래"}, "밤-노래"},
		{"fallback to id", models.ExternalPlaylist{ID: "virtual:favorites", Title: "***"}, "virtual-favorites"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.playlist); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	t.Run("long titles are truncated", func(t *testing.T) {
		got := FileName(models.ExternalPlaylist{ID: "1", Title: strings.Repeat("a", 200)})
		if len(got) != 80 {
			t.Errorf("expected 80 characters, got %d", len(got))
		}
	})
}

func TestWriteLibraryExport(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatCSV, FormatText} {
		t.Run(string(format), func(t *testing.T) {
			dir := t.TempDir()

			out, err := WriteLibraryExport(sampleResult(), format, dir)
			if err != nil {
				t.Fatalf("WriteLibraryExport failed: %v", err)
			}
			if len(out.Files) != 3 {
				t.Fatalf("expected 3 playlist files, got %d: %v", len(out.Files), out.Files)
			}

			ext := "." + string(format)
			for _, name := range []string{"test-playlist", "test-playlist-2", "virtual-favorites"} {
				th.AssertFileExists(t, filepath.Join(dir, name+ext))
			}
			th.AssertFileExists(t, out.Manifest)
		})
	}

	t.Run("manifest", func(t *testing.T) {
		dir := t.TempDir()
		out, err := WriteLibraryExport(sampleResult(), FormatJSON, dir)
		if err != nil {
			t.Fatal(err)
		}

		var m Manifest
		if err := json.Unmarshal([]byte(th.MustReadFile(t, out.Manifest)), &m); err != nil {
			t.Fatalf("invalid manifest: %v", err)
		}
		if m.Identity.UserID != "user-1" || m.Status != models.SyncPartial {
			t.Errorf("unexpected manifest header: %+v", m)
		}
		if len(m.Playlists) != 3 {
			t.Fatalf("expected 3 manifest entries, got %d", len(m.Playlists))
		}
		if m.Playlists[0].File != "test-playlist.json" || m.Playlists[0].TrackCount != 2 {
			t.Errorf("unexpected first entry: %+v", m.Playlists[0])
		}
		if !m.Playlists[2].Virtual {
			t.Error("expected favorites entry to be virtual")
		}
		if len(m.Failures) != 1 || m.Failures[0].PlaylistID != "broken" {
			t.Errorf("expected broken playlist under failures, got %+v", m.Failures)
		}
	})

	t.Run("markdown with covers", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/ok.jpg" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte("jpeg"))
		}))
		defer srv.Close()

		result := sampleResult()
		result.Playlists[0].ImageURL = srv.URL + "/ok.jpg"
		result.Playlists[1].ImageURL = srv.URL + "/missing.jpg"

		dir := t.TempDir()
		out, err := WriteLibraryExport(result, FormatMarkdown, dir, WithCoverImages(srv.Client()), WithExportLogger(th.NewDiscardLogger()))
		if err != nil {
			t.Fatalf("WriteLibraryExport failed: %v", err)
		}

		th.AssertDirExists(t, filepath.Join(dir, "test-playlist"))
		th.AssertFileExists(t, filepath.Join(dir, "test-playlist", "cover.jpg"))
		readme := th.MustReadFile(t, filepath.Join(dir, "test-playlist", "README.md"))
		if !strings.Contains(readme, "![Cover](cover.jpg)") {
			t.Error("expected README to reference the cover")
		}

		other := th.MustReadFile(t, filepath.Join(dir, "test-playlist-2", "README.md"))
		if strings.Contains(other, "![Cover]") {
			t.Error("failed cover download should not be referenced")
		}
		if len(out.Files) != 4 {
			t.Errorf("expected 3 READMEs and 1 cover, got %d: %v", len(out.Files), out.Files)
		}
	})

	t.Run("default directory", func(t *testing.T) {
		t.Chdir(t.TempDir())

		out, err := WriteLibraryExport(sampleResult(), FormatText, "")
		if err != nil {
			t.Fatal(err)
		}
		if out.Directory != "tidal-export-20260301-093000" {
			t.Errorf("unexpected default directory %q", out.Directory)
		}
		th.AssertDirExists(t, out.Directory)
	})

	t.Run("invalid input", func(t *testing.T) {
		if _, err := WriteLibraryExport(nil, FormatJSON, t.TempDir()); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := WriteLibraryExport(sampleResult(), Format("xml"), t.TempDir()); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}
