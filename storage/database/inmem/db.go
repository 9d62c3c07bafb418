package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/jumuiya/core"
	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/joinrequest"
	"github.com/trezcool/jumuiya/core/membership"
	"github.com/trezcool/jumuiya/core/user"
)

type (
	tables struct {
		users       map[string]user.User
		families    map[string]directory.Family
		classrooms  map[string]directory.Classroom
		students    map[string]directory.StudentProfile
		codes       map[string]invitation.Code
		requests    map[string]joinrequest.Request
		members     map[string]membership.FamilyMember // {family_id:user_id: member}
		enrollments map[string]membership.Enrollment   // {classroom_id:student_id: enrollment}
		connections map[string]membership.Connection   // {Connection.Key(): connection}
	}

	// DB is an in-memory database. Transactions are serialized on a single lock
	// and rolled back by restoring a snapshot of every table.
	DB struct {
		mu sync.RWMutex
		t  tables
	}

	// tx is the executor handed to transactional units of work.
	// It only marks calls made inside InTx, which already holds the write lock; it never runs SQL.
	tx struct {
		core.DBExecutor
		db *DB
	}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{t: newTables()}
}

func newTables() tables {
	return tables{
		users:       make(map[string]user.User),
		families:    make(map[string]directory.Family),
		classrooms:  make(map[string]directory.Classroom),
		students:    make(map[string]directory.StudentProfile),
		codes:       make(map[string]invitation.Code),
		requests:    make(map[string]joinrequest.Request),
		members:     make(map[string]membership.FamilyMember),
		enrollments: make(map[string]membership.Enrollment),
		connections: make(map[string]membership.Connection),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.families {
		c.families[k] = v
	}
	for k, v := range t.classrooms {
		c.classrooms[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.codes {
		c.codes[k] = v
	}
	for k, v := range t.requests {
		c.requests[k] = v
	}
	for k, v := range t.members {
		c.members[k] = v
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.connections {
		c.connections[k] = v
	}
	return c
}

func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.t.clone()
	if err := fn(&tx{db: db}); err != nil {
		db.t = snapshot
		return err
	}
	return nil
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	db.t = newTables()
	db.mu.Unlock()
}

func (db *DB) inTx(exec []core.DBExecutor) bool {
	if len(exec) == 0 {
		return false
	}
	t, ok := exec[0].(*tx)
	return ok && t.db == db
}

// read runs fn under the read lock, unless exec is a transaction of db.
func (db *DB) read(exec []core.DBExecutor, fn func(t *tables)) {
	if !db.inTx(exec) {
		db.mu.RLock()
		defer db.mu.RUnlock()
	}
	fn(&db.t)
}

// write runs fn under the write lock, unless exec is a transaction of db.
func (db *DB) write(exec []core.DBExecutor, fn func(t *tables)) {
	if !db.inTx(exec) {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	fn(&db.t)
}

func pairKey(a, b string) string {
	return a + ":" + b
}
