package syncclient

import (
	"context"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/todo-1m/todosync/internal/app/changelog"
	"github.com/todo-1m/todosync/internal/app/todos"
)

// Result summarizes one Pull.
type Result struct {
	Entries   int
	Upserted  int
	Removed   int
	Watermark int64
}

// Replica keeps State in step with the server by pulling the changelist and
// refetching touched todos.
type Replica struct {
	Client *Client
	State  State
	Logger *log.Logger
	Now    func() time.Time
}

func NewReplica(client *Client, st State) *Replica {
	if st.Todos == nil {
		st.Todos = map[string]todos.Todo{}
	}
	return &Replica{
		Client: client,
		State:  st,
		Logger: log.Default(),
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Pull fetches entries past the watermark and applies them. The watermark
// only advances once every touched todo has been reconciled.
func (r *Replica) Pull(ctx context.Context) (Result, error) {
	entries, err := r.Client.FetchChanges(ctx, r.State.Watermark)
	if err != nil {
		return Result{Watermark: r.State.Watermark}, err
	}
	return r.Apply(ctx, entries)
}

// Apply reconciles the replica with entries. Only the newest entry per
// resource matters: tombstones drop the local copy, anything else is
// refetched from the server.
func (r *Replica) Apply(ctx context.Context, entries []changelog.Entry) (Result, error) {
	res := Result{Entries: len(entries), Watermark: r.State.Watermark}
	if len(entries) == 0 {
		return res, nil
	}

	sorted := append([]changelog.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	latest := map[string]changelog.Entry{}
	for _, entry := range sorted {
		if entry.ResourceType != changelog.ResourceTypeTodo {
			continue
		}
		latest[entry.ResourceID] = entry
	}

	var fetch, removed []string
	for id, entry := range latest {
		if entry.IsDeleted {
			removed = append(removed, id)
			continue
		}
		fetch = append(fetch, id)
	}
	sort.Strings(fetch)

	fetched, err := r.Client.FetchTodos(ctx, fetch)
	if err != nil {
		return res, err
	}
	seen := make(map[string]bool, len(fetched))
	for _, todo := range fetched {
		r.State.Todos[todo.ID] = todo
		seen[todo.ID] = true
		res.Upserted++
	}
	// A todo deleted after the changelist was read is gone from the list
	// response; its tombstone arrives on the next pull.
	for _, id := range fetch {
		if !seen[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		if _, ok := r.State.Todos[id]; ok {
			delete(r.State.Todos, id)
			res.Removed++
		}
	}

	r.State.Watermark = sorted[len(sorted)-1].Version
	r.State.SyncedAt = r.Now()
	res.Watermark = r.State.Watermark
	r.Logger.Debug("applied changes", "entries", res.Entries, "upserted", res.Upserted, "removed", res.Removed, "watermark", res.Watermark)
	return res, nil
}
