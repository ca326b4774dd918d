package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/voyagen/channelfold/internal/catalog"
)

// fakeCatalog records calls and fails on configured inputs.
type fakeCatalog struct {
	mu sync.Mutex

	nextID     int64
	groups     []catalog.Group
	profiles   []catalog.Profile
	channels   []catalog.ChannelRequest
	assigned   map[int64]int64
	epg        [][]int64
	groupCalls int

	failStreamURL  string // CreateStream fails for URLs containing this
	failLogo       bool
	failEPG        bool
	failAssign     bool
	unauthorized   bool
	failChannelFor string // CreateChannel fails for this name
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{nextID: 100, assigned: map[int64]int64{}}
}

func (f *fakeCatalog) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeCatalog) ListProfiles(context.Context) ([]catalog.Profile, error) {
	return f.profiles, nil
}

func (f *fakeCatalog) CreateProfile(_ context.Context, name string) (catalog.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := catalog.Profile{ID: f.id(), Name: name}
	f.profiles = append(f.profiles, p)
	return p, nil
}

func (f *fakeCatalog) CreateStream(_ context.Context, url, name string) (catalog.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unauthorized {
		return catalog.Stream{}, catalog.ErrUnauthorized
	}
	if f.failStreamURL != "" && strings.Contains(url, f.failStreamURL) {
		return catalog.Stream{}, &catalog.APIError{StatusCode: 400}
	}
	return catalog.Stream{ID: f.id(), Name: name, URL: url}, nil
}

func (f *fakeCatalog) CreateLogo(_ context.Context, name, url string) (catalog.Logo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLogo {
		return catalog.Logo{}, errors.New("logo rejected")
	}
	return catalog.Logo{ID: f.id(), Name: name, URL: url}, nil
}

func (f *fakeCatalog) ListGroups(context.Context) ([]catalog.Group, error) {
	return f.groups, nil
}

func (f *fakeCatalog) CreateGroup(_ context.Context, name string) (catalog.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupCalls++
	g := catalog.Group{ID: f.id(), Name: name}
	f.groups = append(f.groups, g)
	return g, nil
}

func (f *fakeCatalog) CreateChannel(_ context.Context, req catalog.ChannelRequest) (catalog.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Name == f.failChannelFor {
		return catalog.Channel{}, errors.New("channel rejected")
	}
	f.channels = append(f.channels, req)
	return catalog.Channel{ID: f.id(), Name: req.Name, TvgID: req.TvgID}, nil
}

func (f *fakeCatalog) AssignToProfile(_ context.Context, profileID, channelID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAssign {
		return errors.New("assign rejected")
	}
	f.assigned[channelID] = profileID
	return nil
}

func (f *fakeCatalog) MatchEPG(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEPG {
		return errors.New("epg unavailable")
	}
	f.epg = append(f.epg, ids)
	return nil
}

func (f *fakeCatalog) channelNamed(name string) (catalog.ChannelRequest, bool) {
	for _, c := range f.channels {
		if c.Name == name {
			return c, true
		}
	}
	return catalog.ChannelRequest{}, false
}
