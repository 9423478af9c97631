package workspace

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgen/internal/document"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/runner"
	"github.com/rendis/flowgen/internal/store"
	"github.com/rendis/flowgen/internal/streaming"
	"github.com/rendis/flowgen/pkg/schema"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newWorkspace(t *testing.T, s store.Store) *Workspace {
	t.Helper()
	w, err := New(Options{Store: s, Limits: graph.DefaultLimits()})
	require.NoError(t, err)
	return w
}

// addCounter adds a diagram printing 0, 1 and 2.
func addCounter(p *project.Project) error {
	if !p.Variables().Contains("x") {
		if err := p.Variables().Add("x"); err != nil {
			return err
		}
	}
	d, err := p.AddDiagram("")
	if err != nil {
		return err
	}
	ids := make([]graph.NodeID, 0, 6)
	for _, n := range []struct {
		kind    graph.Kind
		payload string
	}{
		{graph.KindStart, ""},
		{graph.KindAssign, "x = 0"},
		{graph.KindCondition, "x < 3"},
		{graph.KindOutput, "x"},
		{graph.KindAssign, "x = x + 1"},
		{graph.KindEnd, ""},
	} {
		node, err := d.AddNode(n.kind, n.payload, graph.Position{})
		if err != nil {
			return err
		}
		ids = append(ids, node.ID)
	}
	for _, e := range []struct {
		from, to int
		branch   graph.Branch
	}{
		{0, 1, graph.BranchNone},
		{1, 2, graph.BranchNone},
		{2, 3, graph.BranchTrue},
		{3, 4, graph.BranchNone},
		{4, 2, graph.BranchNone},
		{2, 5, graph.BranchFalse},
	} {
		if err := d.Connect(ids[e.from], ids[e.to], e.branch); err != nil {
			return err
		}
	}
	return nil
}

func TestMemoryWorkspace(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, nil)

	b, err := w.Create(ctx, "beta")
	require.NoError(t, err)
	a, err := w.Create(ctx, " alpha ")
	require.NoError(t, err)
	assert.Equal(t, "alpha", a.Name)

	got, err := w.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Same(t, b, got)

	list, err := w.List(ctx, store.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "beta", list[1].Name)

	list, err = w.List(ctx, store.ProjectFilter{NamePrefix: "be"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = w.List(ctx, store.ProjectFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, w.Delete(ctx, b.ID))
	_, err = w.Get(ctx, b.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(w.Delete(ctx, b.ID)))

	gens, err := w.Generations(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestUpdatePersists(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := newWorkspace(t, s)

	p, err := w.Create(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, w.Update(ctx, p.ID, addCounter))

	// a second workspace over the same store loads the saved document
	other := newWorkspace(t, s)
	loaded, err := other.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", loaded.Name)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, []string{"x"}, loaded.Variables().List())

	list, err := other.List(ctx, store.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Diagrams)
}

func TestUpdateErrorSkipsSave(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	w := newWorkspace(t, s)

	p, err := w.Create(ctx, "demo")
	require.NoError(t, err)

	err = w.Update(ctx, p.ID, func(p *project.Project) error {
		_, _ = p.AddDiagram("")
		return schema.NewError(schema.ErrCodeValidation, "rejected")
	})
	require.Error(t, err)

	rec, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Diagrams)
}

func TestUpdateUnknownProject(t *testing.T) {
	w := newWorkspace(t, newStore(t))
	err := w.Update(context.Background(), "missing", func(*project.Project) error { return nil })
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	src := project.New("imported", graph.DefaultLimits())
	require.NoError(t, addCounter(src))
	data, err := document.Save(src, document.FormatYAML)
	require.NoError(t, err)

	w := newWorkspace(t, newStore(t))
	p, err := w.Import(ctx, data, document.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, src.ID, p.ID)
	assert.Equal(t, 1, p.Len())

	_, err = w.Import(ctx, []byte("{"), document.FormatJSON)
	assert.Equal(t, schema.ErrCodeDecode, schema.CodeOf(err))
}

func TestGenerateRecordsSource(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, newStore(t))

	p, err := w.Create(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, w.Update(ctx, p.ID, addCounter))

	out, err := w.Generate(ctx, p.ID, "python")
	require.NoError(t, err)
	assert.Contains(t, out.Source, "while x < 3:")

	gens, err := w.Generations(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, "python", gens[0].Target)
	assert.Equal(t, out.Source, gens[0].Source)
}

func TestGenerateInvalidProject(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, newStore(t))

	p, err := w.Create(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, w.Update(ctx, p.ID, func(p *project.Project) error {
		_, err := p.AddDiagram("")
		return err
	}))

	out, err := w.Generate(ctx, p.ID, "python")
	assert.Equal(t, schema.ErrCodeStartCount, schema.CodeOf(err))
	require.NotNil(t, out)
	require.Len(t, out.Reports, 1)

	gens, err := w.Generations(ctx, p.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestRunAndTrials(t *testing.T) {
	ctx := context.Background()
	w := newWorkspace(t, nil)

	p, err := w.Create(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, w.Update(ctx, p.ID, addCounter))

	res, err := w.Run(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, res.Outputs)
	assert.Equal(t, 3, res.Variables["x"])

	rep, err := w.Trials(ctx, p.ID, []runner.Case{{Expected: "0 1 2"}}, 3)
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Equal(t, 3, rep.Runs)
}

func TestRunWithCELDialect(t *testing.T) {
	ctx := context.Background()
	w, err := New(Options{Dialect: "cel"})
	require.NoError(t, err)

	p, err := w.Create(ctx, "demo")
	require.NoError(t, err)
	require.NoError(t, w.Update(ctx, p.ID, addCounter))

	res, err := w.Run(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, res.Outputs, 3)
}

func TestChangeEvents(t *testing.T) {
	ctx := context.Background()
	hub := streaming.NewMemoryHub()
	w, err := New(Options{Limits: graph.DefaultLimits(), Events: hub})
	require.NoError(t, err)
	assert.Same(t, hub, w.Events())

	ch, cancel, err := hub.Subscribe(ctx, streaming.Filter{})
	require.NoError(t, err)
	defer cancel()

	p, err := w.Create(ctx, "events")
	require.NoError(t, err)
	require.NoError(t, w.Update(ctx, p.ID, addCounter))
	_, err = w.Generate(ctx, p.ID, "go")
	require.NoError(t, err)
	require.NoError(t, w.Delete(ctx, p.ID))

	var types []string
	for range 4 {
		ev := <-ch
		assert.Equal(t, p.ID, ev.ProjectID)
		types = append(types, ev.EventType)
		if ev.EventType == streaming.EventProjectUpdated {
			assert.Equal(t, 1, ev.Payload.(map[string]any)["diagrams"])
		}
	}
	assert.Equal(t, []string{
		streaming.EventProjectCreated,
		streaming.EventProjectUpdated,
		streaming.EventSourceGenerated,
		streaming.EventProjectDeleted,
	}, types)
}

// slowStore holds GetProject for one project until release is closed.
type slowStore struct {
	store.Store
	id      string
	loading chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowStore) GetProject(ctx context.Context, id string) (*store.ProjectRecord, error) {
	if id == s.id {
		s.once.Do(func() { close(s.loading) })
		<-s.release
	}
	return s.Store.GetProject(ctx, id)
}

func TestGetLoadsOutsideWorkspaceLock(t *testing.T) {
	ctx := context.Background()
	base := newStore(t)
	slow, err := newWorkspace(t, base).Create(ctx, "slow")
	require.NoError(t, err)

	s := &slowStore{Store: base, id: slow.ID, loading: make(chan struct{}), release: make(chan struct{})}
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(s.release) }) }
	t.Cleanup(release)

	w := newWorkspace(t, s)
	fast, err := w.Create(ctx, "fast")
	require.NoError(t, err)

	const callers = 4
	got := make([]*project.Project, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := w.Get(ctx, slow.ID)
			assert.NoError(t, err)
			got[i] = p
		}()
	}

	select {
	case <-s.loading:
	case <-time.After(time.Second):
		t.Fatal("project load never started")
	}

	// an open project stays reachable while another one loads
	done := make(chan error, 1)
	go func() {
		_, err := w.Get(ctx, fast.ID)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Get of an open project waited for another project's load")
	}

	release()
	wg.Wait()
	require.NotNil(t, got[0])
	assert.Equal(t, "slow", got[0].Name)
	for _, p := range got[1:] {
		assert.Same(t, got[0], p)
	}
}
