// Package journal keeps a small local history of lifecycle events: what
// berth did, to which service, and when. It answers "what happened last
// night" without grepping daemon logs.
package journal

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mjl-/bstore"
)

// Event is one journal entry. ID is assigned by the database on insert and
// orders events chronologically.
type Event struct {
	ID      int64
	Time    time.Time `bstore:"nonzero,default now"`
	Project string    `bstore:"nonzero,index"`
	Service string    // empty for project-level events
	Action  string    `bstore:"nonzero"` // start, stop, recreate, restart, unhealthy, backup, up, down
	Detail  string
}

// maxEvents bounds the journal; entries beyond the newest maxEvents are
// dropped when the journal is opened.
const maxEvents = 1000

// Journal is an append-mostly event log in a single database file.
type Journal struct {
	db *bstore.DB
}

// Open opens the journal at path, creating the file and its directory when
// missing, and prunes old entries.
func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	db, err := bstore.Open(ctx, path, &bstore.Options{Perm: 0660}, Event{})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	j := &Journal{db: db}
	if err := j.prune(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, project, service, action, detail string) error {
	ev := Event{
		Time:    time.Now(),
		Project: project,
		Service: service,
		Action:  action,
		Detail:  detail,
	}
	if err := j.db.Insert(ctx, &ev); err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// List returns the newest n events, most recent first. n <= 0 returns
// everything.
func (j *Journal) List(ctx context.Context, n int) ([]Event, error) {
	events, err := bstore.QueryDB[Event](ctx, j.db).SortDesc("ID").List()
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	if n > 0 && len(events) > n {
		events = events[:n]
	}
	return events, nil
}

// Recorder adapts the journal to the supervisor's event callback. A failed
// write is logged and dropped: the action it describes already happened.
func (j *Journal) Recorder(project string) func(service, action, detail string) {
	return func(service, action, detail string) {
		if err := j.Record(context.Background(), project, service, action, detail); err != nil {
			log.Printf("journal: %v", err)
		}
	}
}

func (j *Journal) prune(ctx context.Context) error {
	return j.db.Write(ctx, func(tx *bstore.Tx) error {
		events, err := bstore.QueryTx[Event](tx).SortDesc("ID").List()
		if err != nil {
			return err
		}
		for _, ev := range events[min(maxEvents, len(events)):] {
			if err := tx.Delete(&ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// DefaultPath returns the journal location for a project, honoring
// XDG_STATE_HOME and falling back to ~/.local/state.
func DefaultPath(project string) (string, error) {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("finding home dir: %w", err)
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "berth", project+".db"), nil
}
