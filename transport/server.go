// Package transport implements the thin REST adapter of spec §4.12
// (component L): labstack/echo/v4 routes for the seven operations that
// are in scope — login/logout, event begin/end, single-cell read/write,
// and the cube/area bulk read — translating HTTP requests into calls on
// a server.Server and server.Database. Everything else enumerated in
// spec §6's wire protocol is explicitly out of scope and is not stubbed
// here. Grounded on the teacher's cli/root.go echo bootstrap
// (middleware.Logger/Recover/CORS wiring) generalized from the teacher's
// workflow-engine routes to this protocol's handler set.
package transport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"molap.evalgo.org/logging"
	"molap.evalgo.org/molaperr"
	"molap.evalgo.org/server"
	"molap.evalgo.org/session"
	"molap.evalgo.org/token"
	"molap.evalgo.org/valueengine"
)

var log = logging.For("transport")

// New builds an echo.Echo wired to srv, with the teacher's standard
// Logger/Recover/CORS middleware stack.
func New(srv *server.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())

	h := &handlers{srv: srv}
	e.POST("/server/login", h.login)
	e.POST("/server/logout", h.logout)
	e.POST("/event/begin", h.eventBegin)
	e.POST("/event/end", h.eventEnd)
	e.GET("/cell/value", h.cellValue)
	e.POST("/cell/replace", h.cellReplace)
	e.GET("/cube/area", h.cubeArea)
	return e
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			fields := logrus.Fields{"method": c.Request().Method, "path": c.Path(), "status": c.Response().Status}
			if err != nil {
				log.WithFields(fields).WithError(err).Warn("request failed")
			} else {
				log.WithFields(fields).Debug("request")
			}
			return err
		}
	}
}

type handlers struct {
	srv *server.Server
}

// wireError maps a molaperr.Error to the matching HTTP status, and
// anything else to 500 (spec §6's numeric codes aren't themselves HTTP
// statuses; this is the adapter's own mapping for the REST surface).
func wireError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	status := http.StatusInternalServerError
	if me, ok := err.(*molaperr.Error); ok {
		switch me.Code {
		case molaperr.CodeInvalidSession, molaperr.CodeNotAuthorized:
			status = http.StatusUnauthorized
		case molaperr.CodeDatabaseNotFound, molaperr.CodeDimensionNotFound, molaperr.CodeCubeNotFound, molaperr.CodeElementNotFound, molaperr.CodeRuleNotFound:
			status = http.StatusNotFound
		case molaperr.CodeDatabaseNameInUse, molaperr.CodeDimensionNameInUse, molaperr.CodeCubeNameInUse, molaperr.CodeElementNameInUse:
			status = http.StatusConflict
		case molaperr.CodeInvalidCoordinates, molaperr.CodeInvalidSplashMode, molaperr.CodeInvalidPathType, molaperr.CodeParameterMissing:
			status = http.StatusBadRequest
		case molaperr.CodeWithinEvent, molaperr.CodeNotWithinEvent, molaperr.CodeLockedArea:
			status = http.StatusConflict
		case molaperr.CodeServerTokenOutdated, molaperr.CodeDatabaseTokenOutdated, molaperr.CodeDimensionTokenOutdated, molaperr.CodeCubeTokenOutdated, molaperr.CodeClientCacheTokenOutdated:
			status = http.StatusPreconditionFailed
		}
		return c.JSON(status, echo.Map{"error": me.Description, "message": me.Message})
	}
	return c.JSON(status, echo.Map{"error": "Internal", "message": err.Error()})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handlers) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return wireError(c, molaperr.ParameterMissing("username/password"))
	}
	sess, err := h.srv.Login(req.Username, req.Password)
	if err != nil {
		return wireError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": string(sess.ID)})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

func (h *handlers) logout(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return wireError(c, molaperr.ParameterMissing("session_id"))
	}
	h.srv.Logout(session.ID(req.SessionID))
	return c.NoContent(http.StatusNoContent)
}

// sessionUser resolves a session id to its username, failing with
// InvalidSession when the session is unknown or expired (spec §6
// "InvalidSession").
func (h *handlers) sessionUser(sessionID string) (string, error) {
	sess, ok := h.srv.Sessions.Lookup(session.ID(sessionID))
	if !ok {
		return "", molaperr.InvalidSession(sessionID)
	}
	return sess.Username, nil
}

func (h *handlers) database(name string) (*server.Database, error) {
	db, ok := h.srv.DatabaseByName(name)
	if !ok {
		return nil, molaperr.NotFound("database", name)
	}
	return db, nil
}

type eventRequest struct {
	SessionID string `json:"session_id"`
	Database  string `json:"database"`
	EventName string `json:"event_name"`
}

func (h *handlers) eventBegin(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return wireError(c, molaperr.ParameterMissing("session_id/database/event_name"))
	}
	username, err := h.sessionUser(req.SessionID)
	if err != nil {
		return wireError(c, err)
	}
	db, err := h.database(req.Database)
	if err != nil {
		return wireError(c, err)
	}
	if err := db.BeginEvent(req.SessionID, username, req.EventName); err != nil {
		return wireError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) eventEnd(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return wireError(c, molaperr.ParameterMissing("session_id/database"))
	}
	db, err := h.database(req.Database)
	if err != nil {
		return wireError(c, err)
	}
	if err := db.EndEvent(req.SessionID); err != nil {
		return wireError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseCoord(s string) ([]int, error) {
	if s == "" {
		return nil, molaperr.ParameterMissing("coord")
	}
	parts := strings.Split(s, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, molaperr.InvalidCoordinates("coord must be a comma-separated list of element ids")
		}
		out[i] = n
	}
	return out, nil
}

// seenTokens reads the client's last-observed tokens off the X-PALO-SV,
// X-PALO-DB and X-PALO-CB headers (the cube token keyed by the cube_id
// query parameter), for callers that want to enforce optimistic-
// concurrency preconditions via token.Bus.Check. X-PALO-DIM and
// X-PALO-CC are not read.
func seenTokens(c echo.Context) token.Seen {
	var seen token.Seen
	if v := c.Request().Header.Get("X-PALO-SV"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			u := uint32(n)
			seen.Server = &u
		}
	}
	if v := c.Request().Header.Get("X-PALO-DB"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			u := uint32(n)
			seen.Database = &u
		}
	}
	if v := c.Request().Header.Get("X-PALO-CB"); v != "" {
		if cubeID, err := strconv.Atoi(c.QueryParam("cube_id")); err == nil {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				seen.Cube = map[int]uint32{cubeID: uint32(n)}
			}
		}
	}
	return seen
}

func (h *handlers) cellValue(c echo.Context) error {
	username, err := h.sessionUser(c.QueryParam("session_id"))
	if err != nil {
		return wireError(c, err)
	}
	db, err := h.database(c.QueryParam("database"))
	if err != nil {
		return wireError(c, err)
	}
	cubeID, err := strconv.Atoi(c.QueryParam("cube_id"))
	if err != nil {
		return wireError(c, molaperr.ParameterMissing("cube_id"))
	}
	coord, err := parseCoord(c.QueryParam("coord"))
	if err != nil {
		return wireError(c, err)
	}
	if err := db.Tokens.Check(seenTokens(c)); err != nil {
		return wireError(c, err)
	}

	v, err := db.CellValue(username, cubeID, coord)
	if err != nil {
		return wireError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"numeric": v.Numeric, "string": v.String, "is_string": v.IsString})
}

type cellReplaceRequest struct {
	SessionID  string  `json:"session_id"`
	Database   string  `json:"database"`
	CubeID     int     `json:"cube_id"`
	Coord      []int   `json:"coord"`
	Numeric    float64 `json:"numeric"`
	String     string  `json:"string"`
	IsString   bool    `json:"is_string"`
	SplashMode int     `json:"splash_mode"`
	Add        bool    `json:"add"`
}

func (h *handlers) cellReplace(c echo.Context) error {
	var req cellReplaceRequest
	if err := c.Bind(&req); err != nil {
		return wireError(c, molaperr.ParameterMissing("cell/replace body"))
	}
	username, err := h.sessionUser(req.SessionID)
	if err != nil {
		return wireError(c, err)
	}
	db, err := h.database(req.Database)
	if err != nil {
		return wireError(c, err)
	}
	mode := valueengine.SplashMode(req.SplashMode)
	if err := db.CellReplace(username, req.SessionID, req.CubeID, req.Coord, req.Numeric, req.String, req.IsString, mode); err != nil {
		return wireError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseArea(values []string) (valueengine.Area, error) {
	area := make(valueengine.Area, len(values))
	for i, v := range values {
		if v == "" {
			area[i] = nil
			continue
		}
		ids, err := parseCoord(v)
		if err != nil {
			return nil, err
		}
		area[i] = ids
	}
	return area, nil
}

func (h *handlers) cubeArea(c echo.Context) error {
	username, err := h.sessionUser(c.QueryParam("session_id"))
	if err != nil {
		return wireError(c, err)
	}
	db, err := h.database(c.QueryParam("database"))
	if err != nil {
		return wireError(c, err)
	}
	cubeID, err := strconv.Atoi(c.QueryParam("cube_id"))
	if err != nil {
		return wireError(c, molaperr.ParameterMissing("cube_id"))
	}
	area, err := parseArea(c.QueryParams()["area"])
	if err != nil {
		return wireError(c, err)
	}
	skipEmpty := c.QueryParam("skip_empty") == "true"

	type cellOut struct {
		Coord    []int   `json:"coord"`
		Numeric  float64 `json:"numeric"`
		String   string  `json:"string"`
		IsString bool    `json:"is_string"`
	}
	var results []cellOut
	err = db.AreaRead(username, cubeID, area, skipEmpty, func(res valueengine.CellResult) bool {
		results = append(results, cellOut{Coord: res.Coord, Numeric: res.Value.Numeric, String: res.Value.String, IsString: res.Value.IsString})
		return true
	})
	if err != nil {
		return wireError(c, err)
	}
	return c.JSON(http.StatusOK, results)
}
