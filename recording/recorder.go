// Package recording stores what happens on a platform in a SQLite
// database: register accesses, firmware commands, interrupts and engine
// events.
package recording

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/grengine/falcon"
	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/regbus"
)

// AccessRecord is one register access.
type AccessRecord struct {
	Seq    uint64
	TimeNs int64
	Kind   string
	Addr   uint32
	Value  uint32
}

// CommandRecord is one FECS method.
type CommandRecord struct {
	Seq     uint64
	TimeNs  int64
	Name    string
	Method  uint32
	Data    uint32
	Mailbox uint32
	Error   string
}

// InterruptRecord is one serviced interrupt.
type InterruptRecord struct {
	Seq       uint64
	TimeNs    int64
	Engine    string
	Intr      uint32
	Unhandled uint32
	ChannelID int
	Class     uint32
	Method    uint32
	Reset     bool
	TornDown  bool
	Error     string
}

// EventRecord is an engine event that is not an interrupt.
type EventRecord struct {
	Seq       uint64
	TimeNs    int64
	Engine    string
	Kind      string
	ChannelID int
}

// Builder can build recorders.
type Builder struct {
	path      string
	batchSize int
	registers bool
}

// MakeBuilder returns a Builder that records register accesses and flushes
// every 10000 records.
func MakeBuilder() Builder {
	return Builder{
		batchSize: 10000,
		registers: true,
	}
}

// WithPath sets the database file, without the .sqlite3 extension. A
// random name is used otherwise.
func (b Builder) WithPath(path string) Builder {
	b.path = path
	return b
}

// WithBatchSize sets how many records are buffered before a flush.
func (b Builder) WithBatchSize(n int) Builder {
	b.batchSize = n
	return b
}

// WithRegisterAccesses turns the recording of register accesses on or off.
func (b Builder) WithRegisterAccesses(on bool) Builder {
	b.registers = on
	return b
}

// Build creates the database. The file must not exist yet. Buffered records
// are flushed when the program exits through atexit.
func (b Builder) Build() (*Recorder, error) {
	if b.batchSize <= 0 {
		panic("batch size must be positive")
	}

	dbName := b.path
	if dbName == "" {
		dbName = "grengine_recording_" + xid.New().String()
	}

	filename := dbName + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	r := &Recorder{
		DB:        db,
		filename:  filename,
		batchSize: b.batchSize,
		registers: b.registers,
		start:     time.Now(),
	}

	if err := r.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { r.Close() })

	return r, nil
}

// Recorder is a hook that writes what it sees into the database.
type Recorder struct {
	*sql.DB

	lock      sync.Mutex
	filename  string
	batchSize int
	registers bool
	start     time.Time
	seq       uint64
	closed    bool

	accesses   []AccessRecord
	commands   []CommandRecord
	interrupts []InterruptRecord
	events     []EventRecord
}

// Filename returns the database file.
func (r *Recorder) Filename() string {
	return r.filename
}

// Attach registers the recorder as a hook of every object given.
func (r *Recorder) Attach(objs ...hooking.Hookable) {
	for _, o := range objs {
		o.AcceptHook(r)
	}
}

// Func records the hook site.
func (r *Recorder) Func(ctx hooking.HookCtx) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return
	}

	r.seq++
	now := time.Since(r.start).Nanoseconds()

	switch ctx.Pos {
	case regbus.HookPosRead, regbus.HookPosWrite:
		if !r.registers {
			return
		}

		a := ctx.Item.(regbus.Access)
		r.accesses = append(r.accesses, AccessRecord{
			Seq:    r.seq,
			TimeNs: now,
			Kind:   a.Kind.String(),
			Addr:   a.Addr,
			Value:  a.Value,
		})
	case falcon.HookPosCommand:
		m := ctx.Item.(falcon.Method)
		res, _ := ctx.Detail.(falcon.CommandResult)
		r.commands = append(r.commands, CommandRecord{
			Seq:     r.seq,
			TimeNs:  now,
			Name:    m.Name,
			Method:  m.Addr,
			Data:    m.Data,
			Mailbox: res.Mailbox,
			Error:   errString(res.Err),
		})
	case gr.HookPosInterrupt:
		rep := ctx.Detail.(gr.IsrReport)
		r.interrupts = append(r.interrupts, InterruptRecord{
			Seq:       r.seq,
			TimeNs:    now,
			Engine:    domainName(ctx.Domain),
			Intr:      rep.Intr,
			Unhandled: rep.Unhandled,
			ChannelID: rep.ChannelID,
			Class:     rep.Class,
			Method:    rep.Offset << 2,
			Reset:     rep.Reset,
			TornDown:  rep.TornDown,
			Error:     errString(rep.Err),
		})
	case gr.HookPosGoldenCapture:
		ev := EventRecord{
			Seq:       r.seq,
			TimeNs:    now,
			Engine:    domainName(ctx.Domain),
			Kind:      "golden_capture",
			ChannelID: -1,
		}
		if ch, ok := ctx.Item.(*gr.Channel); ok {
			ev.ChannelID = ch.ID
		}

		r.events = append(r.events, ev)
	default:
		return
	}

	if r.buffered() >= r.batchSize {
		r.mustFlush()
	}
}

func (r *Recorder) buffered() int {
	return len(r.accesses) + len(r.commands) + len(r.interrupts) + len(r.events)
}

// Flush writes the buffered records.
func (r *Recorder) Flush() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return
	}

	r.mustFlush()
}

// Close flushes and closes the database. Later hook calls are ignored.
func (r *Recorder) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return nil
	}

	r.mustFlush()
	r.closed = true

	return r.DB.Close()
}

func (r *Recorder) mustFlush() {
	if r.buffered() == 0 {
		return
	}

	tx, err := r.Begin()
	if err != nil {
		panic(err)
	}

	for _, a := range r.accesses {
		mustExec(tx, `INSERT INTO register_access VALUES (?, ?, ?, ?, ?)`,
			a.Seq, a.TimeNs, a.Kind, a.Addr, a.Value)
	}

	for _, c := range r.commands {
		mustExec(tx, `INSERT INTO fecs_command VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.Seq, c.TimeNs, c.Name, c.Method, c.Data, c.Mailbox, c.Error)
	}

	for _, i := range r.interrupts {
		mustExec(tx,
			`INSERT INTO interrupt VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i.Seq, i.TimeNs, i.Engine, i.Intr, i.Unhandled, i.ChannelID,
			i.Class, i.Method, i.Reset, i.TornDown, i.Error)
	}

	for _, e := range r.events {
		mustExec(tx, `INSERT INTO engine_event VALUES (?, ?, ?, ?, ?)`,
			e.Seq, e.TimeNs, e.Engine, e.Kind, e.ChannelID)
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	r.accesses = nil
	r.commands = nil
	r.interrupts = nil
	r.events = nil
}

func (r *Recorder) createTables() error {
	stmts := []string{
		`CREATE TABLE register_access
		(
			seq     INTEGER NOT NULL,
			time_ns INTEGER NOT NULL,
			kind    VARCHAR(1) NOT NULL,
			addr    INTEGER NOT NULL,
			value   INTEGER NOT NULL
		);`,
		`CREATE INDEX register_access_addr_index ON register_access (addr);`,
		`CREATE TABLE fecs_command
		(
			seq     INTEGER NOT NULL,
			time_ns INTEGER NOT NULL,
			name    VARCHAR(100) NOT NULL,
			method  INTEGER NOT NULL,
			data    INTEGER NOT NULL,
			mailbox INTEGER NOT NULL,
			error   TEXT NOT NULL
		);`,
		`CREATE TABLE interrupt
		(
			seq        INTEGER NOT NULL,
			time_ns    INTEGER NOT NULL,
			engine     VARCHAR(100) NOT NULL,
			intr       INTEGER NOT NULL,
			unhandled  INTEGER NOT NULL,
			channel_id INTEGER NOT NULL,
			class      INTEGER NOT NULL,
			method     INTEGER NOT NULL,
			reset      BOOLEAN NOT NULL,
			torn_down  BOOLEAN NOT NULL,
			error      TEXT NOT NULL
		);`,
		`CREATE TABLE engine_event
		(
			seq        INTEGER NOT NULL,
			time_ns    INTEGER NOT NULL,
			engine     VARCHAR(100) NOT NULL,
			kind       VARCHAR(100) NOT NULL,
			channel_id INTEGER NOT NULL
		);`,
	}

	for _, s := range stmts {
		if _, err := r.Exec(s); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}

	return nil
}

func mustExec(tx *sql.Tx, query string, args ...any) {
	if _, err := tx.Exec(query, args...); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute: %s\n", query)
		panic(err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

func domainName(d hooking.Hookable) string {
	if n, ok := d.(interface{ Name() string }); ok {
		return n.Name()
	}

	return ""
}
