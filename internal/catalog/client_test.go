package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

// newServer replies with the canned body for "METHOD path" and records every request.
func newServer(t *testing.T, replies map[string]string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		reqs = append(reqs, rec)

		body, ok := replies[r.Method+" "+r.URL.Path]
		switch {
		case !ok:
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
		case body == "401":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestLogin_SetsToken(t *testing.T) {
	srv, reqs := newServer(t, map[string]string{
		"POST /api/accounts/token/":  `{"access":"abc","refresh":"def"}`,
		"GET /api/channels/profiles/": `[{"id":1,"name":"Main"}]`,
	})
	c := New(srv.URL + "/")

	tok, err := c.Login(t.Context(), "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, Tokens{Access: "abc", Refresh: "def"}, tok)

	profiles, err := c.ListProfiles(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []Profile{{ID: 1, Name: "Main"}}, profiles)

	require.Len(t, *reqs, 2)
	assert.Equal(t, "admin", (*reqs)[0].Body["username"])
	assert.Empty(t, (*reqs)[0].Auth)
	assert.Equal(t, "Bearer abc", (*reqs)[1].Auth)
}

func TestList_Paginated(t *testing.T) {
	srv, _ := newServer(t, map[string]string{
		"GET /api/channels/groups/": `{"count":2,"results":[{"id":1,"name":"News"},{"id":2,"name":"Sports"}]}`,
	})
	groups, err := New(srv.URL).ListGroups(t.Context())
	require.NoError(t, err)
	assert.Len(t, groups, 2)
	assert.Equal(t, "Sports", groups[1].Name)
}

func TestUnauthorized(t *testing.T) {
	srv, _ := newServer(t, map[string]string{"GET /api/m3u/accounts/": "401"})
	_, err := New(srv.URL, WithToken("stale")).ListM3UAccounts(t.Context())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAPIError(t *testing.T) {
	srv, _ := newServer(t, nil)
	_, err := New(srv.URL).CreateGroup(t.Context(), "News")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "/api/channels/groups/", apiErr.Path)
	assert.Contains(t, apiErr.Error(), "not found")
}

func TestCreateChannel_Body(t *testing.T) {
	srv, reqs := newServer(t, map[string]string{
		"POST /api/channels/streams/":                 `{"id":7,"name":"ESPN HD","url":"http://x/1"}`,
		"POST /api/channels/channels/":                `{"id":11,"name":"ESPN"}`,
		"PATCH /api/channels/profiles/3/channels/11/": `{}`,
		"POST /api/channels/channels/match-epg/":      ``,
	})
	c := New(srv.URL, WithToken("tok"))

	st, err := c.CreateStream(t.Context(), "http://x/1", "ESPN HD")
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.ID)

	group := int64(4)
	ch, err := c.CreateChannel(t.Context(), ChannelRequest{Name: "ESPN", StreamIDs: []int64{st.ID}, GroupID: &group})
	require.NoError(t, err)
	assert.Equal(t, int64(11), ch.ID)

	require.NoError(t, c.AssignToProfile(t.Context(), 3, ch.ID))
	require.NoError(t, c.MatchEPG(t.Context(), []int64{ch.ID}))

	require.Len(t, *reqs, 4)
	assert.Equal(t, true, (*reqs)[0].Body["is_custom"])

	chBody := (*reqs)[1].Body
	assert.Equal(t, "ESPN", chBody["name"])
	assert.Equal(t, []any{float64(7)}, chBody["streams"])
	assert.Equal(t, float64(4), chBody["channel_group_id"])
	assert.NotContains(t, chBody, "tvg_id")
	assert.NotContains(t, chBody, "logo_id")

	assert.Equal(t, http.MethodPatch, (*reqs)[2].Method)
	assert.Equal(t, true, (*reqs)[2].Body["enabled"])
	assert.Equal(t, []any{float64(11)}, (*reqs)[3].Body["channel_ids"])
}
