package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voyagen/channelfold/internal/models"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ESPN [FHD]", "espn"},
		{"ESPN (HD)", "espn"},
		{"ESPN HD", "espn"},
		{"ESPN 4K HEVC", "espn"},
		{"Canal+ Sport [AAA] (backup)", "canalsport"},
		{"Mishdale TV", "misaletv"}, // keywords are removed inside words as well
		{"", ""},
		{"[only tags]", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestSimplifyName(t *testing.T) {
	assert.Equal(t, "ESPN US", SimplifyName("ESPN [FHD]", "ESPN US"))
	assert.Equal(t, "ESPN", SimplifyName("ESPN [FHD] (backup)", ""))
	assert.Equal(t, "Local News", SimplifyName("Local News HD", ""))
	assert.Equal(t, "Mishdale TV", SimplifyName("Mishdale TV", ""))
	assert.Equal(t, "Sky Cinema Action", SimplifyName("Sky Cinema HD Action", ""))
	assert.Equal(t, "", SimplifyName("[4K]", ""))
}

func TestDetectResolution(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Channel 4K Feed", models.Resolution4K},
		{"Channel [1080p]", models.Resolution1080p},
		{"Channel FHD", models.Resolution1080p},
		{"Channel HD", models.Resolution720p},
		{"Channel 720", models.Resolution720p},
		{"Channel SD Only", models.ResolutionSD},
		{"Channel", ""},
		{"4K HD mixed", models.Resolution4K},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectResolution(tt.title))
		})
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABCD -->weird suffix", "ABCD"},
		{"Sky News 1a2F --> 2024-01-01", "Sky News"},
		{"Sky News --> junk", "Sky News"},
		{"News --> live 00ff --> ts", "News"},
		{"Sky News", "Sky News"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			once := CleanName(tt.in)
			assert.Equal(t, tt.want, once)
			assert.Equal(t, once, CleanName(once), "cleanup must be idempotent")
		})
	}
}

func TestCleanNames(t *testing.T) {
	channels := []models.ChannelAggregate{
		{ID: "1", Name: "BBC One 00ff --> x"},
		{ID: "2", Name: "BBC Two"},
	}

	assert.Equal(t, 1, CleanNames(channels))
	assert.Equal(t, "BBC One", channels[0].Name)
	assert.Equal(t, "BBC Two", channels[1].Name)
	assert.Equal(t, 0, CleanNames(channels))
}
