package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"molap.evalgo.org/dimension"
	"molap.evalgo.org/server"
)

func newTestServer(t *testing.T) (*httptest.Server, *server.Server) {
	t.Helper()
	srv := server.New(t.TempDir(), time.Minute)
	return httptest.NewServer(New(srv)), srv
}

func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "admin"})
	resp, err := http.Post(ts.URL+"/server/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out["session_id"]
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
	resp, err := http.Post(ts.URL+"/server/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCellReplaceThenCellValueRoundTripsOverHTTP(t *testing.T) {
	ts, srv := newTestServer(t)
	defer ts.Close()

	db, err := srv.CreateDatabase("Sales")
	require.NoError(t, err)
	d, err := db.CreateDimension("Products", dimension.SubtypeNormal)
	require.NoError(t, err)
	p1, err := d.Add("p1", dimension.KindNumeric)
	require.NoError(t, err)
	c, err := db.CreateCube("Revenue", []int{d.ID})
	require.NoError(t, err)

	sid := login(t, ts)

	replaceBody, _ := json.Marshal(cellReplaceRequest{
		SessionID: sid, Database: "Sales", CubeID: c.ID, Coord: []int{p1}, Numeric: 17,
	})
	resp, err := http.Post(ts.URL+"/cell/replace", "application/json", bytes.NewReader(replaceBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	url := ts.URL + "/cell/value?session_id=" + sid + "&database=Sales&cube_id=" +
		strconv.Itoa(c.ID) + "&coord=" + strconv.Itoa(p1)
	resp, err = http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 17.0, out["numeric"])
}

func TestEventBeginConflictsAcrossSessions(t *testing.T) {
	ts, srv := newTestServer(t)
	defer ts.Close()

	_, err := srv.CreateDatabase("Sales")
	require.NoError(t, err)
	sid := login(t, ts)

	beginBody, _ := json.Marshal(eventRequest{SessionID: sid, Database: "Sales", EventName: "load"})
	resp, err := http.Post(ts.URL+"/event/begin", "application/json", bytes.NewReader(beginBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	otherBody, _ := json.Marshal(eventRequest{SessionID: login(t, ts), Database: "Sales", EventName: "load"})
	resp, err = http.Post(ts.URL+"/event/begin", "application/json", bytes.NewReader(otherBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
