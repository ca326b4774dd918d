package cmd

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/voyagen/channelfold/internal/models"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="espn.us" group-title="Sports",ESPN HD
http://example.com/espn-hd
#EXTINF:-1 tvg-id="espn.us",ESPN 4K
http://example.com/espn-4k
#EXTINF:-1 group-title="News",CNN 1A2B -->junk
http://example.com/cnn
`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	rootCmd.SetIn(bytes.NewBufferString(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		// Flag values persist between Execute calls on the shared command tree.
		for _, c := range []string{"raw", "cleanup", "all", "dry-run"} {
			for _, cmd := range rootCmd.Commands() {
				if f := cmd.Flags().Lookup(c); f != nil {
					_ = f.Value.Set("false")
					f.Changed = false
				}
			}
		}
		if f := parseCmd.Flags().Lookup("format"); f != nil {
			_ = f.Value.Set("json")
		}
		if f := syncCmd.Flags().Lookup("select"); f != nil {
			_ = f.Value.(interface{ Replace([]string) error }).Replace(nil)
			f.Changed = false
		}
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParse_JSONFromStdin(t *testing.T) {
	out, err := run(t, samplePlaylist, "parse", "-")
	require.NoError(t, err)

	var channels []models.ChannelAggregate
	require.NoError(t, json.Unmarshal([]byte(out), &channels))
	require.Len(t, channels, 2)
	assert.Equal(t, "espn.us", channels[0].Name)
	assert.Len(t, channels[0].Streams, 2)
	assert.Equal(t, "CNN 1A2B -->junk", channels[1].Name)
}

func TestParse_CleanupYAMLFromGzipFile(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(samplePlaylist))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	path := filepath.Join(t.TempDir(), "list.m3u.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	out, err := run(t, "", "parse", path, "--format", "yaml", "--cleanup")
	require.NoError(t, err)

	var channels []models.ChannelAggregate
	require.NoError(t, yaml.Unmarshal([]byte(out), &channels))
	require.Len(t, channels, 2)
	assert.Equal(t, "CNN", channels[1].Name)
}

func TestParse_Raw(t *testing.T) {
	out, err := run(t, samplePlaylist, "parse", "-", "--raw")
	require.NoError(t, err)

	var entries []models.RawStreamEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 3)
}

func TestParse_UnknownFormat(t *testing.T) {
	_, err := run(t, samplePlaylist, "parse", "-", "--format", "xml")
	assert.Error(t, err)
}

func TestSync_DryRun(t *testing.T) {
	out, err := run(t, samplePlaylist, "sync", "-", "--select", "news", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "CNN 1A2B -->junk\t1 streams\tNews\n", out)
}

func TestSync_RequiresSelection(t *testing.T) {
	_, err := run(t, samplePlaylist, "sync", "-")
	assert.ErrorContains(t, err, "--all or --select")
}

func TestSelectChannels(t *testing.T) {
	channels := []models.ChannelAggregate{
		{Name: "ESPN", Group: "Sports"},
		{Name: "CNN", Group: "News"},
		{Name: "Sky Sports News", Group: ""},
	}
	assert.Equal(t, 2, selectChannels(channels, false, []string{"SPORTS"}))
	assert.True(t, channels[0].Selected)
	assert.False(t, channels[1].Selected)

	assert.Equal(t, 3, selectChannels(channels, true, nil))
	assert.Equal(t, 0, selectChannels(channels, false, []string{"  "}))
}
