// Package history persists the sheet into a git repository, one commit per
// saved mutation, so earlier versions stay readable.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"sheettracker/api/internal/sheet"
)

const documentFile = "sheet.json"

// Commit describes one saved version.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// GitPersister writes sheet.json into a non-bare repository at dir. The HEAD
// commit is authoritative; the working tree is only a staging area.
type GitPersister struct {
	dir    string
	author string
	mu     sync.Mutex
	now    func() time.Time
}

func NewGitPersister(dir, author string) *GitPersister {
	if author == "" {
		author = "sheetd"
	}
	return &GitPersister{dir: dir, author: author, now: time.Now}
}

func (p *GitPersister) Dir() string { return p.dir }

func (p *GitPersister) Load(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := git.PlainOpen(p.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, sheet.ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, sheet.ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commitObj, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}
	return readDocument(commitObj)
}

// Save commits data as sheet.json. Saving bytes identical to HEAD creates no
// commit.
func (p *GitPersister) Save(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := p.ensureRepo()
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.dir, documentFile), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", documentFile, err)
	}
	if _, err := worktree.Add(documentFile); err != nil {
		return fmt.Errorf("git add %s: %w", documentFile, err)
	}

	message := "Import sheet baseline"
	if m, ok := sheet.MutationFromContext(ctx); ok {
		message = m.Summary()
	}
	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.author,
			Email: p.author + "@localhost",
			When:  p.now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", documentFile, err)
	}
	return nil
}

// History lists commits from HEAD backwards. A non-positive limit returns all.
func (p *GitPersister) History(_ context.Context, limit int) ([]Commit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := git.PlainOpen(p.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ReadAt returns the document as of revision, which may be a full or
// abbreviated hash or any revision git understands.
func (p *GitPersister) ReadAt(_ context.Context, revision string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	repo, err := git.PlainOpen(p.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	commitObj, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", revision, err)
	}
	return readDocument(commitObj)
}

func (p *GitPersister) ensureRepo() (*git.Repository, error) {
	repo, err := git.PlainOpen(p.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(p.dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func readDocument(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(documentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", documentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content bytes: %w", err)
	}
	return data, nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}
