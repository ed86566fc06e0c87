package live

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"stockmind/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func agent(id string, status domain.Status, progress int) domain.Unit {
	return domain.Unit{ID: id, Kind: domain.KindAgent, Name: id, Status: status, Progress: progress}
}

func TestBoardPublishAndSnapshot(t *testing.T) {
	b := NewBoard()
	b.Seed([]domain.Unit{agent("a", domain.StatusIdle, 0), agent("b", domain.StatusIdle, 0)})

	id, ch := b.Subscribe(8)
	defer b.Unsubscribe(id)

	b.Publish(agent("b", domain.StatusWorking, 10))

	evt := <-ch
	if evt.Seq != 1 || evt.Unit.ID != "b" || evt.Unit.Progress != 10 {
		t.Errorf("event = %+v", evt)
	}

	snap, seq := b.Snapshot()
	if seq != 1 {
		t.Errorf("seq = %d, want 1", seq)
	}
	if len(snap) != 2 || snap[0].ID != "a" || snap[1].Status != domain.StatusWorking {
		t.Errorf("snapshot = %+v", snap)
	}
	if u, ok := b.Unit("b"); !ok || u.Progress != 10 {
		t.Errorf("Unit(b) = %+v, %v", u, ok)
	}
}

func TestBoardDropsForSlowSubscriber(t *testing.T) {
	b := NewBoard()
	_, ch := b.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(agent("a", domain.StatusWorking, i*10))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if evt := <-ch; evt.Seq != 1 {
		t.Errorf("kept event seq = %d, want 1", evt.Seq)
	}
}

func TestStructRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 2, 14, 30, 0, 500, time.UTC)
	in := domain.Unit{
		ID: "stock-analysis", Kind: domain.KindWorkflow, Name: "Deep Stock Analysis",
		Status: domain.StatusRunning, Progress: 40, StartedAt: started, RunID: "r-1",
	}
	s, err := UnitToStruct(in)
	if err != nil {
		t.Fatalf("UnitToStruct() error: %v", err)
	}
	out, err := StructToUnit(s)
	if err != nil {
		t.Fatalf("StructToUnit() error: %v", err)
	}
	if out.ID != in.ID || out.Kind != in.Kind || out.Status != in.Status || out.Progress != 40 || out.RunID != "r-1" {
		t.Errorf("round trip = %+v", out)
	}
	if !out.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", out.StartedAt, started)
	}
}

// startServer serves board over an in-memory listener and returns a dial
// option reaching it.
func startServer(t *testing.T, board *Board) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(board, discardLogger()).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func waitUnit(t *testing.T, b *Board, id string, cond func(domain.Unit) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if u, ok := b.Unit(id); ok && cond(u) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	u, _ := b.Unit(id)
	t.Fatalf("unit %s never reached the expected state, last = %+v", id, u)
}

func TestClientSyncMirrorsServer(t *testing.T) {
	remote := NewBoard()
	remote.Seed([]domain.Unit{
		agent("data-agent", domain.StatusIdle, 0),
		{ID: "risk-monitor", Kind: domain.KindWorkflow, Status: domain.StatusIdle},
	})
	dial := startServer(t, remote)

	local := NewBoard()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewClient("passthrough:///bufnet", local, discardLogger(), dial).Sync(ctx)
	}()

	waitUnit(t, local, "risk-monitor", func(u domain.Unit) bool { return u.Status == domain.StatusIdle })

	remote.Publish(agent("data-agent", domain.StatusWorking, 30))
	waitUnit(t, local, "data-agent", func(u domain.Unit) bool { return u.Progress == 30 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Sync() = %v, want nil after cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Sync did not return after cancel")
	}
}

func TestClientKindFilter(t *testing.T) {
	remote := NewBoard()
	remote.Seed([]domain.Unit{
		agent("data-agent", domain.StatusIdle, 0),
		{ID: "risk-monitor", Kind: domain.KindWorkflow, Status: domain.StatusIdle},
	})
	dial := startServer(t, remote)

	local := NewBoard()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewClient("passthrough:///bufnet", local, discardLogger(), dial).OnlyKind(domain.KindWorkflow).Sync(ctx)

	waitUnit(t, local, "risk-monitor", func(domain.Unit) bool { return true })
	remote.Publish(domain.Unit{ID: "risk-monitor", Kind: domain.KindWorkflow, Status: domain.StatusRunning})
	waitUnit(t, local, "risk-monitor", func(u domain.Unit) bool { return u.Status == domain.StatusRunning })

	if _, ok := local.Unit("data-agent"); ok {
		t.Error("agent leaked through a workflow-only stream")
	}
}
