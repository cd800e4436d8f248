package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/obby/fsclassify/internal/classifier"
	"github.com/obby/fsclassify/internal/database"
	"github.com/obby/fsclassify/internal/hub"
	"github.com/obby/fsclassify/internal/pipeline"
)

type fakeJournal struct {
	records []database.EventRecord
	err     error
	limit   int
}

func (f *fakeJournal) RecentEvents(_ context.Context, limit int) ([]database.EventRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func startGRPC(t *testing.T, h *hub.Hub, journal EventLog) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(NewEventStreamService(h, journal, nil), 0, nil)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func runHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})
	return h
}

func TestGRPC_Health(t *testing.T) {
	conn := startGRPC(t, runHub(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: EventStreamServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPC_StreamEvents(t *testing.T) {
	h := runHub(t)
	conn := startGRPC(t, h, nil)
	client := NewEventStreamClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.StreamEvents(ctx, string(classifier.KindRename))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Handle(ctx, pipeline.Notification{Event: classifier.Create("/d/skip"), Received: time.Now()}))
	require.NoError(t, h.Handle(ctx, pipeline.Notification{
		Event:    classifier.Rename("/d/a", "/d/b"),
		Rule:     "rename",
		Received: time.Now(),
	}))

	msg, err := stream.Recv()
	require.NoError(t, err)
	fields := msg.GetFields()
	assert.Equal(t, "renamed", fields["topic"].GetStringValue())
	assert.Equal(t, "renamed", fields["kind"].GetStringValue())
	assert.Equal(t, "/d/a", fields["path"].GetStringValue())
	assert.Equal(t, "/d/b", fields["new_path"].GetStringValue())
	assert.Equal(t, "rename", fields["rule"].GetStringValue())

	cancel()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGRPC_RecentEvents(t *testing.T) {
	journal := &fakeJournal{records: []database.EventRecord{
		{ID: 3, Kind: "moved", Path: "/d/a", NewPath: "/e/a", Rule: "rename", Timestamp: 30},
		{ID: 2, Kind: "created", Path: "/d/a", Rule: "create", Timestamp: 20},
		{ID: 1, Kind: "unknown", Errors: "overflow", Timestamp: 10},
	}}
	conn := startGRPC(t, runHub(t), journal)
	client := NewEventStreamClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.RecentEvents(ctx, 2)
	require.NoError(t, err)

	var kinds []string
	for {
		msg, err := stream.Recv()
		if err != nil {
			break
		}
		kinds = append(kinds, msg.GetFields()["kind"].GetStringValue())
	}
	assert.Equal(t, []string{"moved", "created"}, kinds)
	assert.Equal(t, 2, journal.limit)

	stream, err = client.RecentEvents(ctx, 0)
	require.NoError(t, err)
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
	assert.Equal(t, defaultRecentLimit, journal.limit)
}

func TestGRPC_RecentEventsErrors(t *testing.T) {
	tests := []struct {
		name    string
		journal EventLog
		code    codes.Code
	}{
		{name: "journal disabled", journal: nil, code: codes.FailedPrecondition},
		{name: "journal failure", journal: &fakeJournal{err: errors.New("disk gone")}, code: codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := startGRPC(t, runHub(t), tt.journal)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			stream, err := NewEventStreamClient(conn).RecentEvents(ctx, 5)
			require.NoError(t, err)
			_, err = stream.Recv()
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}
