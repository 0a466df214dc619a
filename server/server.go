package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"molap.evalgo.org/molaperr"
	"molap.evalgo.org/session"
	"molap.evalgo.org/token"
	"molap.evalgo.org/worker"
)

// Server is the top-level registry of loaded databases plus the
// server-wide login/session state shared by all of them. Grounded on
// original_source/molap/server/Source/Olap/Server.cpp's top-level
// database map and on the teacher's statemanager.Manager for the
// registry-plus-mutex shape.
type Server struct {
	Security *Security
	Sessions *session.Registry

	Worker *worker.Gateway // nil when no worker gateway is configured

	mu              sync.RWMutex
	databases       map[int]*Database
	databasesByName map[string]*Database
	nextDBID        int

	serverCounter *uint32
	root          string
}

// New creates a server rooted at rootDir with the given session TTL. The
// returned server has one "admin" user bootstrapped by NewSecurity.
func New(rootDir string, sessionTTL time.Duration) *Server {
	s := &Server{
		Security:        NewSecurity(),
		databases:       make(map[int]*Database),
		databasesByName: make(map[string]*Database),
		serverCounter:   token.NewServerCounter(),
		root:            rootDir,
	}
	s.Sessions = session.NewRegistry(sessionTTL, s.onSessionEvict)
	return s
}

// onSessionEvict releases every lock an evicted session held across every
// loaded database (spec: "session deletion or TTL expiry implicitly
// releases its event lock and rolls back its cube locks").
func (s *Server) onSessionEvict(id session.ID) {
	s.mu.RLock()
	dbs := make([]*Database, 0, len(s.databases))
	for _, db := range s.databases {
		dbs = append(dbs, db)
	}
	s.mu.RUnlock()
	for _, db := range dbs {
		db.CancelSession(string(id))
	}
}

// Login authenticates username/password and starts a session. If no
// local account matches and a worker gateway is configured, the
// credentials are delegated to it (spec §4.10 "external authentication
// falls through to the worker when the user is not locally known").
func (s *Server) Login(username, password string) (*session.Session, error) {
	if s.Security.Authenticate(username, password) {
		return s.Sessions.Login(username), nil
	}
	if s.Worker != nil {
		if _, err := s.Worker.Login(context.Background(), username, password); err == nil {
			s.Security.AddUserToGroup(username, "default")
			return s.Sessions.Login(username), nil
		}
	}
	return nil, molaperr.NotAuthorized("login")
}

// Logout ends a session explicitly.
func (s *Server) Logout(id session.ID) {
	s.Sessions.Logout(id)
}

// CreateDatabase allocates and registers a new, empty database.
func (s *Server) CreateDatabase(name string) (*Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.databasesByName[name]; exists {
		return nil, molaperr.NameInUse("database", name)
	}
	id := s.nextDBID
	s.nextDBID++
	db := newDatabase(id, name, s.root, s.Security, s.serverCounter)
	s.databases[id] = db
	s.databasesByName[name] = db
	return db, nil
}

// DeleteDatabase removes a database by name.
func (s *Server) DeleteDatabase(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databasesByName[name]
	if !ok {
		return molaperr.NotFound("database", name)
	}
	delete(s.databases, db.ID)
	delete(s.databasesByName, name)
	return nil
}

// Database looks up a database by id.
func (s *Server) Database(id int) (*Database, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[id]
	return db, ok
}

// DatabaseByName looks up a database by name.
func (s *Server) DatabaseByName(name string) (*Database, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databasesByName[name]
	return db, ok
}

// Databases returns every loaded database in no particular order.
func (s *Server) Databases() []*Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Database, 0, len(s.databases))
	for _, db := range s.databases {
		out = append(out, db)
	}
	return out
}

// SaveAll persists every loaded database (spec §4.7). The cli calls it
// once, on graceful shutdown.
func (s *Server) SaveAll() error {
	for _, db := range s.Databases() {
		if err := db.Save(); err != nil {
			return fmt.Errorf("save database %q: %w", db.Name, err)
		}
	}
	return nil
}

// Root returns the server's persistence root directory.
func (s *Server) Root() string { return s.root }

// LoadDatabase creates and loads a database that already has data on
// disk under root/name.
func (s *Server) LoadDatabase(name string) (*Database, error) {
	db, err := s.CreateDatabase(name)
	if err != nil {
		return nil, err
	}
	if err := db.Load(); err != nil {
		return nil, err
	}
	return db, nil
}
