package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
)

type (
	// DB is an in-memory store implementing every repository.
	// txMutex is held by the running unit of work (RunInTx) and by writes made outside of one.
	DB struct {
		txMutex sync.Mutex
		mutex   sync.RWMutex
		tables
	}

	tables struct {
		seq       int64
		users     map[string]user.User
		classes   map[int64]roster.StudentClass
		students  map[int64]roster.Student
		standards map[int64]standard.Standard
		levels    map[int64]standard.Level
		results   map[int64]result.Result
	}
)

var _ core.TxRunner = (*DB)(nil)

func Open() *DB {
	return &DB{tables: tables{
		users:     make(map[string]user.User),
		classes:   make(map[int64]roster.StudentClass),
		students:  make(map[int64]roster.Student),
		standards: make(map[int64]standard.Standard),
		levels:    make(map[int64]standard.Level),
		results:   make(map[int64]result.Result),
	}}
}

// nextID must be called with db.mutex held.
func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

func (db *DB) snapshot() tables {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	snap := tables{
		seq:       db.seq,
		users:     make(map[string]user.User, len(db.users)),
		classes:   make(map[int64]roster.StudentClass, len(db.classes)),
		students:  make(map[int64]roster.Student, len(db.students)),
		standards: make(map[int64]standard.Standard, len(db.standards)),
		levels:    make(map[int64]standard.Level, len(db.levels)),
		results:   make(map[int64]result.Result, len(db.results)),
	}
	for k, v := range db.users {
		snap.users[k] = v
	}
	for k, v := range db.classes {
		snap.classes[k] = v
	}
	for k, v := range db.students {
		snap.students[k] = v
	}
	for k, v := range db.standards {
		snap.standards[k] = v
	}
	for k, v := range db.levels {
		snap.levels[k] = v
	}
	for k, v := range db.results {
		snap.results[k] = v
	}
	return snap
}

func (db *DB) restore(snap tables) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.tables = snap
}

// txExec is the executor handed to RunInTx callbacks. It only marks repository calls as part of the unit of work.
type txExec struct {
	core.DBExecutor // nil: never called
	db              *DB
}

// RunInTx runs fn as a unit of work, rolled back from a snapshot when fn fails.
// Units of work are serialized; writes made outside of one wait for the running one to end,
// so a rollback never discards them.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMutex.Lock()
	defer db.txMutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snap := db.snapshot()
	if err := fn(&txExec{db: db}); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// inTx reports whether exec is the executor of a unit of work of db.
func (db *DB) inTx(exec []core.DBExecutor) bool {
	if len(exec) == 0 {
		return false
	}
	tx, ok := exec[0].(*txExec)
	return ok && tx.db == db
}

// lock takes the write lock, first waiting for the running unit of work when exec is not part of it.
func (db *DB) lock(exec []core.DBExecutor) (unlock func()) {
	if db.inTx(exec) {
		db.mutex.Lock()
		return db.mutex.Unlock
	}
	db.txMutex.Lock()
	db.mutex.Lock()
	return func() {
		db.mutex.Unlock()
		db.txMutex.Unlock()
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.tables = Open().tables
}
