// Optional commit history via a local git repository.

package docdb

import (
	"errors"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	historyAuthorName  = "docdb"
	historyAuthorEmail = "docdb@localhost"
)

// history records snapshot commits into a git repository colocated with the
// snapshot file.
type history struct {
	dir  string
	file string
	repo *gogit.Repository
}

func openHistory(dir, file string) (*history, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet, initialize.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history repo in %s: %w", dir, err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read history repo config: %w", err)
		}
		cfg.User.Name = historyAuthorName
		cfg.User.Email = historyAuthorEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write history repo config: %w", err)
		}
	}
	return &history{dir: dir, file: file, repo: repo}, nil
}

// commit stages the snapshot file and commits it. Commits are skipped when
// the file is unchanged since the previous one.
func (h *history) commit(msg string) error {
	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open history worktree: %w", err)
	}
	if _, err := w.Add(h.file); err != nil {
		return fmt.Errorf("failed to stage %s: %w", h.file, err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to read history status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  historyAuthorName,
			Email: historyAuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// HistoryEntry describes one persisted commit of the snapshot.
type HistoryEntry struct {
	Hash    string
	Message string
	When    time.Time
}

// History returns up to n prior snapshot commits, newest first. n <= 0
// returns all of them. The database must have been opened with
// [WithHistory].
func (db *Database) History(n int) ([]HistoryEntry, error) {
	if db.hist == nil {
		return nil, errors.New("history is not enabled; open with WithHistory")
	}
	iter, err := db.hist.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read history log: %w", err)
	}
	defer iter.Close()
	var entries []HistoryEntry
	for n <= 0 || len(entries) < n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		entries = append(entries, HistoryEntry{
			Hash:    c.Hash.String(),
			Message: c.Message,
			When:    c.Author.When,
		})
	}
	return entries, nil
}
