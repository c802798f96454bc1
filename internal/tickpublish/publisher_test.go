package tickpublish

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firestige/tickwatch/pkg/models"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestPublishDeliversJob(t *testing.T) {
	var received int32
	var got models.WriteJob
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Workers: 2, QueueMax: 4, MaxRetries: 3, DropOnFull: true}, nil)
	p.Start()
	defer p.Stop()

	job := models.WriteJob{ServerIP: "10.0.0.1", Tempo: "2026-01-01 00:00:00.000", PPA: 477, Indicator: 100.0}
	if ok := p.Publish(job); !ok {
		t.Fatal("expected publish to succeed")
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&received) == 1 })
	if got.PPA != 477 || got.Indicator != 100.0 {
		t.Fatalf("unexpected delivered job: %+v", got)
	}

	waitFor(t, func() bool { _, _, s, _ := p.Counters(); return s == 1 })
	published, _, sent, _ := p.Counters()
	if published != 1 || sent != 1 {
		t.Fatalf("counters = published:%d sent:%d", published, sent)
	}
}

func TestPublishDropsOnFullQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Workers: 1, QueueMax: 1, MaxRetries: 1, DropOnFull: true}, nil)
	// Workers not started: queue fills immediately.
	if ok := p.Publish(models.WriteJob{PPA: 1}); !ok {
		t.Fatal("expected first publish to succeed")
	}
	if ok := p.Publish(models.WriteJob{PPA: 2}); ok {
		t.Fatal("expected second publish to be dropped")
	}

	_, dropped, _, _ := p.Counters()
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
}

func TestPublishRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(Config{URL: srv.URL, Workers: 1, QueueMax: 4, MaxRetries: 2, DropOnFull: true}, nil)
	p.Start()
	defer p.Stop()

	p.Publish(models.WriteJob{PPA: 1})

	waitFor(t, func() bool { _, _, _, f := p.Counters(); return f == 1 })
	_, _, sent, failed := p.Counters()
	if sent != 0 || failed != 1 {
		t.Fatalf("sent:%d failed:%d, want 0/1", sent, failed)
	}
}

func TestBackoffDelayCapsAtTwoSeconds(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{4, 2 * time.Second},
		{5, 2 * time.Second},
	}
	for _, c := range cases {
		if got := backoffDelay(c.attempt); got != c.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
