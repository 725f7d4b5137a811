// Package task implements the Task Context Registry: a thread-safe map from
// task id to the set of per-task trackers (journal, lineage, external-change,
// tokens, transaction manager, search cache) that give every task isolated
// undo/redo history and file state.
//
// The identifier "default" denotes an ephemeral, in-memory task; every other
// id is persistent and reactivated from `<state-root>/tasks/{id}/` on first
// reference after process start.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ntsdev/nts/pkg/core"
	"github.com/ntsdev/nts/pkg/extchange"
	"github.com/ntsdev/nts/pkg/fs"
	"github.com/ntsdev/nts/pkg/journal"
	"github.com/ntsdev/nts/pkg/lineage"
	"github.com/ntsdev/nts/pkg/searchcache"
	"github.com/ntsdev/nts/pkg/token"
	"github.com/ntsdev/nts/pkg/txn"
)

// DefaultTaskID is the id of the ephemeral, in-memory task every registry
// resolves to when no explicit task id is supplied.
const DefaultTaskID = "default"

// Task bundles one isolation scope's trackers and metadata.
type Task struct {
	ID               string
	CreatedAt        time.Time
	WorkingDirectory string
	ActiveTodo       string

	Store     *journal.Store
	Lineage   *lineage.Tracker
	External  *extchange.Tracker
	Tokens    *token.Tracker
	Validator *token.Validator
	Txn       *txn.Manager
	Search    *searchcache.Cache
	Writer    *fs.AtomicWriter

	persistent bool
	dir        string
	lock       *fs.Lock

	mu             sync.Mutex
	lastActivityAt time.Time
	metadata       map[string]string
}

// touchActivity updates lastActivityAt and persists it to task_metadata,
// swallowing any persistence error: per the error-handling design, metadata
// writes are non-fatal and must not interrupt a tool response.
func (t *Task) touchActivity(ctx context.Context, log *slog.Logger) {
	t.mu.Lock()
	t.lastActivityAt = time.Now()
	at := t.lastActivityAt
	t.mu.Unlock()

	if t.Store == nil {
		return
	}

	if err := t.Store.SetMetadata(ctx, "last_activity_at", at.UTC().Format(time.RFC3339Nano)); err != nil {
		log.Warn("persist task activity failed", "task_id", t.ID, "error", err)
	}
}

// LastActivityAt reports the last time touchActivity was called.
func (t *Task) LastActivityAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastActivityAt
}

// SetMetadata stores an arbitrary custom key/value pair against the task,
// both in memory and (for persistent tasks) in task_metadata.
func (t *Task) SetMetadata(ctx context.Context, key, value string) error {
	t.mu.Lock()
	if t.metadata == nil {
		t.metadata = make(map[string]string)
	}
	t.metadata[key] = value
	t.mu.Unlock()

	if t.Store == nil {
		return nil
	}

	if err := t.Store.SetMetadata(ctx, key, value); err != nil {
		return fmt.Errorf("set task metadata %q: %w", key, err)
	}

	return nil
}

// Metadata returns a custom key previously set via SetMetadata.
func (t *Task) Metadata(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.metadata[key]

	return v, ok
}

// close releases the task's journal handle and sidecar lock.
func (t *Task) close() error {
	var err error

	if t.Store != nil {
		err = t.Store.Close()
	}

	if t.lock != nil {
		if lerr := t.lock.Close(); lerr != nil && err == nil {
			err = lerr
		}
	}

	return err
}

// Registry is the process-wide (but never globally reached-into; callers
// always hold an explicit *Registry) map of taskId to *Task. Per §9,
// "Global mutable state": there is exactly one Registry per process, created
// explicitly by main, never a package-level singleton.
type Registry struct {
	stateRoot string
	fsys      fs.FS
	writer    *fs.AtomicWriter
	locker    *fs.Locker
	log       *slog.Logger

	mu    sync.Mutex
	tasks map[string]*Task

	currentMu sync.RWMutex
	current   string
}

// NewRegistry creates a Registry rooted at stateRoot (typically
// Config.StateRoot). fsys is the filesystem abstraction every task's Safe I/O
// and Locker are built from.
func NewRegistry(stateRoot string, fsys fs.FS, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		stateRoot: stateRoot,
		fsys:      fsys,
		writer:    fs.NewAtomicWriter(fsys),
		locker:    fs.NewLocker(fsys),
		log:       log,
		tasks:     make(map[string]*Task),
		current:   DefaultTaskID,
	}
}

// SetCurrent records which task id subsequent Current calls should resolve
// to, matching §4.8's per-request `setCurrent(taskContext)`.
func (r *Registry) SetCurrent(taskID string) {
	if taskID == "" {
		taskID = DefaultTaskID
	}

	r.currentMu.Lock()
	r.current = taskID
	r.currentMu.Unlock()
}

// Current resolves the currently set task id, defaulting to "default".
func (r *Registry) Current(ctx context.Context) (*Task, error) {
	r.currentMu.RLock()
	id := r.current
	r.currentMu.RUnlock()

	return r.Get(ctx, id)
}

// Get returns the task for id, creating an ephemeral one for "" / "default"
// or reactivating a persistent one from disk on first reference.
func (r *Registry) Get(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		id = DefaultTaskID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[id]; ok {
		return t, nil
	}

	var (
		t   *Task
		err error
	)

	if id == DefaultTaskID {
		t, err = r.newEphemeralTask(ctx)
	} else {
		t, err = r.reactivateTask(ctx, id)
	}

	if err != nil {
		return nil, err
	}

	r.tasks[id] = t

	return t, nil
}

// Create allocates a new persistent task with a fresh id (a UUIDv7, so the
// id is time-ordered) and an initial working directory.
func (r *Registry) Create(ctx context.Context, workingDirectory string) (*Task, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	return r.CreateWithID(ctx, id.String(), workingDirectory)
}

// CreateWithID is like Create but with a caller-supplied id.
func (r *Registry) CreateWithID(ctx context.Context, id, workingDirectory string) (*Task, error) {
	if id == "" || id == DefaultTaskID {
		return nil, fmt.Errorf("create task: %w", core.New(core.KindParamInvalid, "task id must be non-empty and not \"default\""))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; ok {
		return nil, fmt.Errorf("create task %q: already active", id)
	}

	dir := r.taskDir(id)

	if err := r.fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task %q: %w", id, err)
	}

	t, err := r.openPersistentTask(ctx, id, dir, workingDirectory, time.Now())
	if err != nil {
		return nil, err
	}

	r.tasks[id] = t

	return t, nil
}

// Reset destroys the in-memory task (closing its journal handle and lock)
// and, if deleteFiles is true, removes its on-disk directory.
func (r *Registry) Reset(id string, deleteFiles bool) error {
	if id == "" {
		id = DefaultTaskID
	}

	r.mu.Lock()
	t, ok := r.tasks[id]
	delete(r.tasks, id)
	r.mu.Unlock()

	if ok {
		if err := t.close(); err != nil {
			r.log.Warn("close task on reset failed", "task_id", id, "error", err)
		}
	}

	if deleteFiles && id != DefaultTaskID {
		if err := r.fsys.RemoveAll(r.taskDir(id)); err != nil {
			return fmt.Errorf("reset task %q: %w", id, err)
		}
	}

	return nil
}

// TouchActivity updates and persists t's lastActivityAt.
func (r *Registry) TouchActivity(ctx context.Context, t *Task) {
	t.touchActivity(ctx, r.log)
}

func (r *Registry) taskDir(id string) string {
	return filepath.Join(r.stateRoot, "tasks", id)
}

func (r *Registry) newEphemeralTask(ctx context.Context) (*Task, error) {
	store, err := journal.InMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new ephemeral task: %w", err)
	}

	return r.assemble(DefaultTaskID, store, false, "", ""), nil
}

func (r *Registry) reactivateTask(ctx context.Context, id string) (*Task, error) {
	dir := r.taskDir(id)

	exists, err := r.fsys.Exists(dir)
	if err != nil {
		return nil, fmt.Errorf("reactivate task %q: %w", id, err)
	}

	if !exists {
		return nil, fmt.Errorf("reactivate task %q: %w", id, core.ErrTaskNotFound)
	}

	return r.openPersistentTask(ctx, id, dir, "", time.Time{})
}

func (r *Registry) openPersistentTask(ctx context.Context, id, dir, workingDirectory string, createdAt time.Time) (*Task, error) {
	lock, err := r.locker.Lock(filepath.Join(dir, "journal.lock"))
	if err != nil {
		return nil, fmt.Errorf("lock task %q: %w", id, err)
	}

	store, err := journal.Open(ctx, dir)
	if err != nil {
		_ = lock.Close()

		return nil, fmt.Errorf("open task %q journal: %w", id, err)
	}

	t := r.assemble(id, store, true, dir, workingDirectory)
	t.lock = lock

	if createdAt.IsZero() {
		if v, ok, _ := store.GetMetadata(ctx, "created_at"); ok {
			if parsed, perr := time.Parse(time.RFC3339Nano, v); perr == nil {
				createdAt = parsed
			}
		}

		if wd, ok, _ := store.GetMetadata(ctx, "working_directory"); ok {
			t.WorkingDirectory = wd
		}
	} else {
		if err := store.SetMetadata(ctx, "created_at", createdAt.UTC().Format(time.RFC3339Nano)); err != nil {
			r.log.Warn("persist task created_at failed", "task_id", id, "error", err)
		}

		if err := store.SetMetadata(ctx, "working_directory", workingDirectory); err != nil {
			r.log.Warn("persist task working_directory failed", "task_id", id, "error", err)
		}
	}

	t.CreatedAt = createdAt

	return t, nil
}

func (r *Registry) assemble(id string, store *journal.Store, persistent bool, dir, workingDirectory string) *Task {
	lineageTracker := lineage.New()
	externalTracker := extchange.New(nil)
	tokenTracker := token.NewTracker()
	manager := txn.New(store, lineageTracker, externalTracker, tokenTracker, r.writer)

	var cache *searchcache.Cache

	if persistent {
		cache = searchcache.New(filepath.Join(dir, "searchcache.gob"))
	} else {
		cache = searchcache.NewInMemory()
	}

	return &Task{
		ID:               id,
		CreatedAt:        time.Now(),
		WorkingDirectory: workingDirectory,
		Store:            store,
		Lineage:          lineageTracker,
		External:         externalTracker,
		Tokens:           tokenTracker,
		Validator:        token.NewValidator(lineageTracker),
		Txn:              manager,
		Search:           cache,
		Writer:           r.writer,
		persistent:       persistent,
		dir:              dir,
		lastActivityAt:   time.Now(),
	}
}

// Close releases every active task's resources. Intended for process
// shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error

	for id, t := range r.tasks {
		if err := t.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close task %q: %w", id, err)
		}
	}

	r.tasks = make(map[string]*Task)

	return firstErr
}
