package store

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/me/q2galaxy/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleInvocation(id, pluginID string) *model.Invocation {
	return &model.Invocation{
		ID:        id,
		PluginID:  pluginID,
		ActionID:  "primitive_params",
		Stage:     model.StageResolveAction,
		Inputs:    map[string]any{"int_range": "5"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestMigrateIdempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestInvocationCRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	inv := sampleInvocation("inv_1", "mystery_stew")
	if err := st.CreateInvocation(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetInvocation(ctx, "inv_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("invocation not found")
	}
	if got.PluginID != "mystery_stew" || got.Stage != model.StageResolveAction {
		t.Errorf("got %+v", got)
	}
	if got.Inputs["int_range"] != "5" {
		t.Errorf("Inputs = %v", got.Inputs)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	got.Stage = model.StageFailed
	got.ErrorKind = model.ErrExecution
	got.Error = "boom"
	got.CompletedAt = &now
	if err := st.UpdateInvocation(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, _ := st.GetInvocation(ctx, "inv_1")
	if again.Stage != model.StageFailed || again.ErrorKind != model.ErrExecution || again.Error != "boom" {
		t.Errorf("after update: %+v", again)
	}
	if again.CompletedAt == nil || !again.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", again.CompletedAt, now)
	}

	missing, err := st.GetInvocation(ctx, "inv_nope")
	if err != nil || missing != nil {
		t.Errorf("GetInvocation(missing) = %v, %v", missing, err)
	}
	if err := st.UpdateInvocation(ctx, &model.Invocation{ID: "inv_nope"}); err == nil {
		t.Error("expected error updating a missing invocation")
	}
}

func TestCreateInvocationDefaults(t *testing.T) {
	st := testStore(t)
	inv := &model.Invocation{PluginID: "p", ActionID: "a"}
	if err := st.CreateInvocation(context.Background(), inv); err != nil {
		t.Fatal(err)
	}
	if len(inv.ID) < 5 || inv.ID[:4] != "inv_" {
		t.Errorf("ID = %q", inv.ID)
	}
	if inv.Stage != model.StageIdle {
		t.Errorf("Stage = %q", inv.Stage)
	}
	if inv.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestListInvocations(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	for i, p := range []string{"a", "b", "a"} {
		inv := sampleInvocation("", p)
		inv.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if i == 2 {
			inv.Stage = model.StageDone
		}
		if err := st.CreateInvocation(ctx, inv); err != nil {
			t.Fatal(err)
		}
	}

	all, total, err := st.ListInvocations(ctx, model.DefaultListOptions())
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("total=%d len=%d, want 3", total, len(all))
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Error("expected newest first")
	}

	onlyA, total, err := st.ListInvocations(ctx, model.ListOptions{PluginID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(onlyA) != 2 {
		t.Errorf("plugin filter: total=%d len=%d", total, len(onlyA))
	}

	done, total, err := st.ListInvocations(ctx, model.ListOptions{PluginID: "a", Stage: model.StageDone})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(done) != 1 {
		t.Errorf("stage filter: total=%d len=%d", total, len(done))
	}

	page, total, err := st.ListInvocations(ctx, model.ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 1 {
		t.Errorf("paging: total=%d len=%d", total, len(page))
	}
}

func TestResults(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.CreateInvocation(ctx, sampleInvocation("inv_1", "mystery_stew")); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"out", "doubled"} {
		res := &model.ResultRecord{
			InvocationID: "inv_1",
			Name:         name,
			UUID:         "uuid-" + name,
			Type:         "EchoOutput",
			Path:         "/work/" + name + ".qza",
			Size:         1234,
		}
		if err := st.CreateResult(ctx, res); err != nil {
			t.Fatalf("create result: %v", err)
		}
	}

	results, err := st.ListResults(ctx, "inv_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}

	inv, _ := st.GetInvocation(ctx, "inv_1")
	if len(inv.Results) != 2 {
		t.Errorf("invocation results = %d, want 2", len(inv.Results))
	}

	res, err := st.GetResultByUUID(ctx, "uuid-out")
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Name != "out" || res.Size != 1234 {
		t.Errorf("GetResultByUUID = %+v", res)
	}
	if res, _ := st.GetResultByUUID(ctx, "nope"); res != nil {
		t.Errorf("GetResultByUUID(nope) = %+v", res)
	}

	dup := &model.ResultRecord{InvocationID: "inv_1", Name: "x", UUID: "uuid-out", Type: "T", Path: "p"}
	if err := st.CreateResult(ctx, dup); err == nil {
		t.Error("expected unique violation for duplicate uuid")
	}
	orphan := &model.ResultRecord{InvocationID: "inv_missing", Name: "x", UUID: "u2", Type: "T", Path: "p"}
	if err := st.CreateResult(ctx, orphan); err == nil {
		t.Error("expected foreign key violation")
	}
}
