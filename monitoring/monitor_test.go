package monitoring_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/grengine/gpusim"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/monitoring"
	"github.com/sarchlab/grengine/poll"
)

type counters struct {
	Count int
	Name  string
}

func newPlatform() *gpusim.Platform {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return gpusim.MakeBuilder().
		WithLogger(logger).
		WithPollConfig(poll.Config{
			Timeout:  20 * time.Millisecond,
			MinDelay: time.Microsecond,
			MaxDelay: 50 * time.Microsecond,
		}).
		Build("Device")
}

var _ = Describe("Monitor API", func() {
	var (
		p       *gpusim.Platform
		m       *monitoring.Monitor
		handler http.Handler
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	decode := func(rec *httptest.ResponseRecorder, v any) {
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	BeforeEach(func() {
		p = newPlatform()
		m = monitoring.NewMonitor()
		m.RegisterEngine(p.Engine, p.Fifo)
		m.RegisterComponent("Counters", &counters{Count: 3, Name: "zbc"})
		handler = m.Handler()

		Expect(p.Boot(context.Background())).To(Succeed())
	})

	It("should list engines", func() {
		var names []string
		decode(get("/api/engines"), &names)

		Expect(names).To(Equal([]string{"Device.GR"}))
	})

	It("should refuse to register an engine twice", func() {
		Expect(func() { m.RegisterEngine(p.Engine, nil) }).To(Panic())
	})

	It("should answer 404 for unknown engines", func() {
		Expect(get("/api/engine/Other").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/engine/Other/channels").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should report engine state and golden captures", func() {
		_, err := p.OpenChannel(context.Background(), hw.KeplerC, false)
		Expect(err).ToNot(HaveOccurred())

		var rsp struct {
			Name           string
			Ready          bool
			GoldenCaptured bool
			HookedCaptures int `json:"hooked_captures"`
		}
		decode(get("/api/engine/Device.GR"), &rsp)

		Expect(rsp.Name).To(Equal("Device.GR"))
		Expect(rsp.Ready).To(BeTrue())
		Expect(rsp.GoldenCaptured).To(BeTrue())
		Expect(rsp.HookedCaptures).To(Equal(1))
	})

	It("should list channels", func() {
		ch, err := p.OpenChannel(context.Background(), hw.KeplerC, false)
		Expect(err).ToNot(HaveOccurred())

		var rsp []struct {
			ID         int  `json:"id"`
			InUse      bool `json:"in_use"`
			NumObjects int  `json:"num_objects"`
		}
		decode(get("/api/engine/Device.GR/channels"), &rsp)

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].ID).To(Equal(ch.ID))
		Expect(rsp[0].InUse).To(BeTrue())
		Expect(rsp[0].NumObjects).To(Equal(1))
	})

	It("should keep the interrupt history", func() {
		ch, err := p.OpenChannel(context.Background(), hw.KeplerC, false)
		Expect(err).ToNot(HaveOccurred())

		p.Interrupt(gpusim.Trap{
			Intr:  hw.GrIntrIllegalClass,
			Class: 0x1234,
			Ctx:   gpusim.ChannelCtx(ch),
		})

		var rsp []struct {
			ChannelID int    `json:"channel_id"`
			Class     string `json:"class"`
			Reset     bool   `json:"reset"`
			TornDown  bool   `json:"torn_down"`
			Error     string `json:"error"`
		}
		decode(get("/api/engine/Device.GR/interrupts"), &rsp)

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].ChannelID).To(Equal(ch.ID))
		Expect(rsp[0].Class).To(Equal("0x1234"))
		Expect(rsp[0].Reset).To(BeTrue())
		Expect(rsp[0].TornDown).To(BeTrue())
		Expect(rsp[0].Error).ToNot(BeEmpty())
	})

	It("should reset the engine on POST only", func() {
		Expect(get("/api/engine/Device.GR/reset").Code).
			To(Equal(http.StatusMethodNotAllowed))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(
			http.MethodPost, "/api/engine/Device.GR/reset", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(p.Engine.Snapshot().GoldenCaptured).To(BeFalse())
	})

	It("should list components", func() {
		var names []string
		decode(get("/api/list_components"), &names)

		Expect(names).To(Equal([]string{"Device.GR", "Counters"}))
	})

	It("should serialize components", func() {
		Expect(get("/api/component/Counters").Code).To(Equal(http.StatusOK))
		Expect(get("/api/component/Nothing").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should reject unknown fields", func() {
		req := url.PathEscape(`{"comp_name":"Counters","field_name":"Missing"}`)

		Expect(get("/api/field/" + req).Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject malformed field requests", func() {
		Expect(get("/api/field/" + url.PathEscape("{")).Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("Open channels", 8)
		bar.Start(3)
		bar.Finish(2)

		var rsp []struct {
			Name       string `json:"name"`
			Total      uint64 `json:"total"`
			InProgress uint64 `json:"in_progress"`
			Finished   uint64 `json:"finished"`
		}
		decode(get("/api/progress"), &rsp)

		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].Name).To(Equal("Open channels"))
		Expect(rsp[0].Total).To(Equal(uint64(8)))
		Expect(rsp[0].InProgress).To(Equal(uint64(1)))
		Expect(rsp[0].Finished).To(Equal(uint64(2)))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should report process resources", func() {
		var rsp struct {
			MemorySize uint64 `json:"memory_size"`
		}
		decode(get("/api/resource"), &rsp)

		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should serve the web page", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})
