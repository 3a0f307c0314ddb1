package recording

import (
	"database/sql"
	"fmt"
)

// Summary counts the records of a database.
type Summary struct {
	Accesses   int
	Commands   int
	Interrupts int
	Events     int
}

// Reader reads a recording back.
type Reader struct {
	*sql.DB
}

// Open opens a recording created by a Recorder.
func Open(filename string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+filename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	return &Reader{DB: db}, nil
}

// Summary counts the records of every table.
func (r *Reader) Summary() (Summary, error) {
	var s Summary

	counts := []struct {
		table string
		dst   *int
	}{
		{"register_access", &s.Accesses},
		{"fecs_command", &s.Commands},
		{"interrupt", &s.Interrupts},
		{"engine_event", &s.Events},
	}

	for _, c := range counts {
		row := r.QueryRow("SELECT COUNT(*) FROM " + c.table)
		if err := row.Scan(c.dst); err != nil {
			return s, fmt.Errorf("count %s: %w", c.table, err)
		}
	}

	return s, nil
}

// Accesses returns the accesses to addr in order.
func (r *Reader) Accesses(addr uint32) ([]AccessRecord, error) {
	rows, err := r.Query(`SELECT seq, time_ns, kind, addr, value
		FROM register_access WHERE addr = ? ORDER BY seq`, addr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccessRecord
	for rows.Next() {
		var a AccessRecord
		if err := rows.Scan(&a.Seq, &a.TimeNs, &a.Kind, &a.Addr, &a.Value); err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	return out, rows.Err()
}

// Commands returns every FECS method in order.
func (r *Reader) Commands() ([]CommandRecord, error) {
	rows, err := r.Query(`SELECT seq, time_ns, name, method, data, mailbox, error
		FROM fecs_command ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var c CommandRecord
		err := rows.Scan(&c.Seq, &c.TimeNs, &c.Name, &c.Method, &c.Data,
			&c.Mailbox, &c.Error)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

// Interrupts returns every interrupt in order.
func (r *Reader) Interrupts() ([]InterruptRecord, error) {
	rows, err := r.Query(`SELECT seq, time_ns, engine, intr, unhandled,
		channel_id, class, method, reset, torn_down, error
		FROM interrupt ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InterruptRecord
	for rows.Next() {
		var i InterruptRecord
		err := rows.Scan(&i.Seq, &i.TimeNs, &i.Engine, &i.Intr, &i.Unhandled,
			&i.ChannelID, &i.Class, &i.Method, &i.Reset, &i.TornDown, &i.Error)
		if err != nil {
			return nil, err
		}

		out = append(out, i)
	}

	return out, rows.Err()
}

// Events returns every engine event in order.
func (r *Reader) Events() ([]EventRecord, error) {
	rows, err := r.Query(`SELECT seq, time_ns, engine, kind, channel_id
		FROM engine_event ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.Seq, &e.TimeNs, &e.Engine, &e.Kind, &e.ChannelID); err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	return out, rows.Err()
}
