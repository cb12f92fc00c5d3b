//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/trackzen/trackd/internal/infra"
	"github.com/trackzen/trackd/internal/usecase"
)

// collectorStub is a scriptable in-process collector. Flip down to true to
// simulate the network being unreachable.
type collectorStub struct {
	mu         sync.Mutex
	down       bool
	nextID     int
	sessions   map[string]map[string]any
	activities []map[string]any
}

func newCollectorStub() *collectorStub {
	return &collectorStub{sessions: make(map[string]map[string]any)}
}

func (c *collectorStub) setDown(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down = down
}

func (c *collectorStub) activityCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.activities)
}

func (c *collectorStub) session(id string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

func (c *collectorStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.Method {
		case http.MethodPost:
			c.nextID++
			id := fmt.Sprintf("session-%d", c.nextID)
			c.sessions[id] = body
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
		case http.MethodPut:
			id, _ := body["sessionId"].(string)
			c.sessions[id] = body
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("{}"))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/activities", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		c.activities = append(c.activities, body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	})
	return mux
}

var _ = Describe("Tracking Engine", func() {
	var (
		ctx       context.Context
		dataDir   string
		collector *collectorStub
		server    *httptest.Server
		store     *infra.EncryptedStore
		client    *infra.CollectorClient
		mgr       *usecase.Manager
		syncer    *usecase.Syncer
		logger    *zap.Logger
	)

	newEngine := func() {
		var err error
		store, err = infra.NewEncryptedStore(dataDir, testEncryptionKey())
		Expect(err).NotTo(HaveOccurred())

		disp := usecase.NewDispatcher(store, client, logger)
		mgr = usecase.NewManager(store, client, disp, logger)
		syncer = usecase.NewSyncer(store, client, logger)
	}

	BeforeEach(func() {
		ctx = context.Background()
		dataDir = GinkgoT().TempDir()
		logger = zap.NewNop()

		collector = newCollectorStub()
		server = httptest.NewServer(collector.handler())
		client = infra.NewCollectorClient(server.URL+"/api", "test-token", 5*time.Second)

		newEngine()
		Expect(store.SetTrackingEnabled(ctx, true)).To(Succeed())
	})

	AfterEach(func() {
		store.Close()
		server.Close()
	})

	Describe("session lifecycle", func() {
		It("registers the session and reports its close", func() {
			Expect(mgr.Init(ctx)).To(Succeed())
			Expect(mgr.Active()).To(BeTrue())

			mgr.SwitchTab(ctx, 1, "https://example.com", "Example")
			mgr.End(ctx, "idle timeout")

			sess := collector.session("session-1")
			Expect(sess).NotTo(BeNil())
			Expect(sess["endTime"]).NotTo(BeEmpty())
			Expect(sess["totalTabs"]).To(BeEquivalentTo(1))

			id, err := store.CurrentSessionID(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(BeEmpty(), "identity is cleared after a confirmed close")
		})
	})

	Describe("offline caching and sync", func() {
		It("caches activities while the collector is down and flushes them on sync", func() {
			Expect(mgr.Init(ctx)).To(Succeed())

			collector.setDown(true)

			// A long-enough activity: backdate the session manager's clock
			// by switching tabs around a real sleep is too slow, so lean on
			// the store directly for the cached entries.
			mgr.SwitchTab(ctx, 1, "https://example.com", "Example")
			mgr.SwitchTab(ctx, 2, "https://other.test", "Other")

			// The first activity had zero duration and was discarded, so
			// cache a synthetic closed one the way a real outage would.
			a := closedTestActivity("https://example.com/long", "Long read", 12)
			Expect(store.AppendPendingActivity(ctx, a)).To(Succeed())

			collector.setDown(false)
			syncer.Sync(ctx)

			Expect(collector.activityCount()).To(Equal(1))
			pending, err := store.PendingActivities(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())
		})

		It("leaves the cache untouched when the flush fails", func() {
			a := closedTestActivity("https://example.com", "Example", 3)
			Expect(store.AppendPendingActivity(ctx, a)).To(Succeed())

			collector.setDown(true)
			syncer.Sync(ctx)

			pending, err := store.PendingActivities(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(HaveLen(1))
		})
	})

	Describe("crash recovery", func() {
		It("replays a session that ended while the collector was down", func() {
			Expect(mgr.Init(ctx)).To(Succeed())

			collector.setDown(true)
			mgr.End(ctx, "shutdown")

			// Simulate a process restart: reopen the store, rebuild the
			// engine, collector back up.
			Expect(store.Close()).To(Succeed())
			collector.setDown(false)
			newEngine()

			Expect(mgr.Init(ctx)).To(Succeed())

			// The interrupted session was replayed as an update against its
			// known id, and a new session was opened on top.
			sess := collector.session("session-1")
			Expect(sess).NotTo(BeNil())
			Expect(sess["endTime"]).NotTo(BeEmpty())

			snap, err := store.PendingSession(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap).To(BeNil())

			Expect(collector.session("session-2")).NotTo(BeNil())
		})
	})
})
