package core

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maxdjohnson/py-hotstart/internal/interp"
)

// History is a best-effort, append-only audit log of supervisor lifecycle
// events. It is never consulted when answering EXITCODE requests — that
// path is served exclusively from the in-memory exit-info ring — so its
// presence never reintroduces persistence of exit codes across restarts.
type History struct {
	db *sql.DB
}

func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("history: opening database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS child_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			os_pid INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			timestamp DATETIME NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: creating schema: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) log(id interp.ChildID, eventType, detail string) {
	_, err := h.db.Exec(
		`INSERT INTO child_events (seq, os_pid, event_type, detail, timestamp) VALUES (?, ?, ?, ?, ?)`,
		id.Seq, id.PID, eventType, detail, time.Now().UTC(),
	)
	if err != nil {
		slog.Warn("history: write failed", "event", eventType, "child", id.String(), "error", err)
	}
}

func (h *History) LogSpawn(id interp.ChildID) {
	h.log(id, "spawn", "")
}

func (h *History) LogKill(id interp.ChildID, signal string) {
	h.log(id, "kill", signal)
}

func (h *History) LogExit(id interp.ChildID, exitCode int) {
	h.log(id, "exit", fmt.Sprintf("exit_code=%d", exitCode))
}

type HistoryEvent struct {
	Seq       uint32
	PID       int
	EventType string
	Detail    string
	Timestamp time.Time
}

func (h *History) Recent(limit int) ([]HistoryEvent, error) {
	rows, err := h.db.Query(
		`SELECT seq, os_pid, event_type, detail, timestamp FROM child_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: querying: %w", err)
	}
	defer rows.Close()

	var events []HistoryEvent
	for rows.Next() {
		var e HistoryEvent
		if err := rows.Scan(&e.Seq, &e.PID, &e.EventType, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
