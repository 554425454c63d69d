// Package acquiredb records acquisition runs and their output files in a
// ClickHouse database, so a lab full of rotated CSV files stays findable.
// Recording is optional: without credentials every call is a no-op.
package acquiredb

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/oklog/ulid/v2"
)

const databaseName = "micdaq" // official SQL name of the database

// Connection wraps one ClickHouse connection plus the channels on which run
// and file records arrive. A zero-value ("dummy") Connection accepts every
// call and stores nothing.
type Connection struct {
	conn    clickhouse.Conn
	err     error
	runmsg  chan *RunMessage
	filemsg chan *FileMessage
	sync.WaitGroup
}

// RunMessage is the information required to make an entry in the runs table.
type RunMessage struct {
	ID              string
	Hostname        string
	Version         string
	SourceName      string
	Frequency       int
	DurationSeconds float64
	WindowSamples   int
	RotationSeconds float64
	OutputStem      string
	Samples         int
	Skipped         int
	Start           time.Time
	End             time.Time
}

// FileMessage is the information required to make an entry in the files table.
type FileMessage struct {
	RunID    string
	Filename string
	Rows     int
	Opened   time.Time
	Closed   time.Time
}

// NewID returns a fresh ULID string for run and file rows.
func NewID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// IsConnected reports whether the connection is live and error-free.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// Start opens the database connection and launches the goroutine that
// handles record messages until abort is closed. If the connection cannot
// be made (notably: no credentials in the environment), the returned
// Connection is a working dummy.
func Start(abort <-chan struct{}) *Connection {
	db := connect()
	go db.handleConnection(abort)
	return db
}

// Dummy returns a Connection that records nothing.
func Dummy() *Connection {
	db := &Connection{}
	db.Add(1)
	return db
}

func connect() *Connection {
	db := &Connection{}
	dbUser := os.Getenv("MICDAQ_DB_USER")
	dbPass := os.Getenv("MICDAQ_DB_PASSWORD")
	if dbUser == "" {
		db.err = fmt.Errorf("MICDAQ_DB_USER is not set")
		db.Add(1)
		return db
	}
	addr := os.Getenv("MICDAQ_DB_ADDR")
	if addr == "" {
		addr = "localhost:9000"
	}

	opt := clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: databaseName,
			Username: dbUser,
			Password: dbPass,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: "micdaq", Version: "unknown"},
			},
		},
	}
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		db.Add(1)
		return db
	}
	db.conn = conn
	db.Add(1)

	if err = conn.Ping(context.Background()); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			fmt.Printf("ClickHouse exception [%d] %s\n%s\n",
				exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}

	db.runmsg = make(chan *RunMessage)
	db.filemsg = make(chan *FileMessage)
	return db
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.Disconnect()
			return
		case rmsg := <-db.runmsg:
			db.insertRun(rmsg)
		case fmsg := <-db.filemsg:
			db.insertFile(fmsg)
		}
	}
}

// Disconnect closes the underlying connection, if open.
func (db *Connection) Disconnect() {
	if db.IsConnected() {
		db.conn.Close()
	}
}

// RecordRun stores a run entry. This call blocks until `handleConnection`
// accepts the message.
// WARNING: Don't change this blocking behavior! It guarantees the run row
// exists before any corresponding RecordFile call, so file rows never carry
// a run ID the database has not seen.
func (db *Connection) RecordRun(msg *RunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.runmsg <- msg
}

// FinishRun re-stores a run entry with its end time and final counts filled in.
func (db *Connection) FinishRun(msg *RunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	msg.End = time.Now()
	go func() { db.runmsg <- msg }()
}

// RecordFile stores one finished output file entry.
func (db *Connection) RecordFile(msg *FileMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	go func() { db.filemsg <- msg }()
}

const timeLayout = "2006-01-02 15:04:05.000000"

func (db *Connection) insertRun(m *RunMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, m.Hostname, m.Version, m.SourceName,
		m.Frequency, m.DurationSeconds, m.WindowSamples, m.RotationSeconds, m.OutputStem,
		m.Samples, m.Skipped,
		m.Start.Format(timeLayout), m.End.Format(timeLayout),
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into runs ", err)
		db.err = err
	}
}

func (db *Connection) insertFile(m *FileMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO files VALUES (?, ?, ?, ?, ?)`, nowait,
		m.RunID, m.Filename, m.Rows,
		m.Opened.Format(timeLayout), m.Closed.Format(timeLayout),
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into files ", err)
		db.err = err
	}
}
