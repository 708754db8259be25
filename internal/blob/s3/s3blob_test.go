package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

type fakeWriter struct {
	puts      map[string][]byte
	multipart map[string][]byte
	err       error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, _ := io.ReadAll(data)
	if w.puts == nil {
		w.puts = make(map[string][]byte)
	}
	w.puts[path] = b
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, _ := io.ReadAll(data)
	if w.multipart == nil {
		w.multipart = make(map[string][]byte)
	}
	w.multipart[path] = b
	return nil
}

type fakeRounds struct {
	rounds  []domain.RoundRecord
	entries map[int64][]domain.Entry
}

func (f *fakeRounds) ListSettledBefore(_ context.Context, before time.Time) ([]domain.RoundRecord, error) {
	var out []domain.RoundRecord
	for _, r := range f.rounds {
		if r.SettledAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRounds) ListEntries(_ context.Context, round int64) ([]domain.Entry, error) {
	return f.entries[round], nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
	detail []map[string]any
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func round(n int64, settled time.Time) domain.RoundRecord {
	return domain.RoundRecord{
		Round:      n,
		StartedAt:  settled.Add(-time.Minute),
		SettledAt:  settled,
		RequestID:  big.NewInt(n),
		RandomWord: big.NewInt(7),
		Players:    1,
		Winner:     common.HexToAddress("0x0a"),
		Prize:      big.NewInt(10),
	}
}

func TestArchiveRounds_GroupsByMonth(t *testing.T) {
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	store := &fakeRounds{
		rounds: []domain.RoundRecord{round(1, jan), round(2, jan.Add(time.Hour)), round(3, feb), round(4, feb.AddDate(0, 2, 0))},
		entries: map[int64][]domain.Entry{
			1: {{Round: 1, Seq: 0, Participant: common.HexToAddress("0x0a"), Amount: big.NewInt(10), EnteredAt: jan}},
		},
	}
	writer := &fakeWriter{}
	audit := &fakeAudit{}

	n, err := NewArchiver(writer, store, audit).ArchiveRounds(context.Background(), feb.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	require.Len(t, writer.puts, 2)
	janFile := writer.puts["archive/rounds/2024-01.jsonl"]
	require.NotEmpty(t, janFile)

	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(janFile))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	require.EqualValues(t, 1, lines[0]["round"])
	require.Len(t, lines[0]["entries"], 1)

	require.Contains(t, writer.puts, "archive/rounds/2024-02.jsonl")
	require.Equal(t, []string{"archive.rounds"}, audit.events)
	require.EqualValues(t, 3, audit.detail[0]["count"])
}

func TestArchiveRounds_NothingToDo(t *testing.T) {
	writer := &fakeWriter{}
	audit := &fakeAudit{}
	n, err := NewArchiver(writer, &fakeRounds{}, audit).ArchiveRounds(context.Background(), time.Now())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, writer.puts)
	require.Empty(t, audit.events)
}

func TestArchiveRounds_UploadFailure(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	writer := &fakeWriter{err: errors.New("bucket gone")}
	audit := &fakeAudit{}
	_, err := NewArchiver(writer, &fakeRounds{rounds: []domain.RoundRecord{round(1, now)}}, audit).
		ArchiveRounds(context.Background(), now.Add(time.Hour))
	require.Error(t, err)
	require.Empty(t, audit.events)
}

func TestNormaliseEndpoint(t *testing.T) {
	require.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
	require.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	require.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}

// fakeS3 answers just enough of the S3 REST API for the writer and reader.
func fakeS3(t *testing.T) (*httptest.Server, map[string][]byte) {
	t.Helper()
	var mu sync.Mutex
	objects := make(map[string][]byte)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		key := strings.TrimPrefix(r.URL.Path, "/lottery-archive/")
		switch r.Method {
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			objects[key] = b
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if _, ok := objects[key]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, objects
}

func TestWriterAndReader_AgainstFakeS3(t *testing.T) {
	srv, objects := fakeS3(t)
	ctx := context.Background()

	c, err := New(ctx, ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "lottery-archive",
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	require.NoError(t, err)

	r := NewReader(c)
	ok, err := r.Exists(ctx, "archive/rounds/2024-01.jsonl")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, NewWriter(c).Put(ctx, "archive/rounds/2024-01.jsonl", strings.NewReader("{}\n"), "application/x-ndjson"))
	require.Contains(t, objects, "archive/rounds/2024-01.jsonl")

	ok, err = r.Exists(ctx, "archive/rounds/2024-01.jsonl")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	require.Error(t, err)
}
