// Package monitoring exposes the state of running graphics engines over
// HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"reflect"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/grengine/gr"
	"github.com/sarchlab/grengine/instrumentation/hooking"
	"github.com/sarchlab/grengine/monitoring/web"
)

const interruptHistory = 64

// ChannelLister is the channel layer as the monitor sees it.
type ChannelLister interface {
	Channels() []*gr.Channel
}

type engineEntry struct {
	engine     *gr.Engine
	channels   ChannelLister
	interrupts []interruptRecord
	captures   int
}

type namedComponent struct {
	name string
	comp any
}

// Monitor serves engine state to the web page and the command line tools.
type Monitor struct {
	portNumber int

	lock       sync.Mutex
	engines    map[string]*engineEntry
	order      []string
	components []namedComponent

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		engines: make(map[string]*engineEntry),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is reserved, using a random port instead\n",
			portNumber)
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine adds an engine to the monitor. The monitor hooks the
// engine to keep a short interrupt history. The channel lister may be nil.
func (m *Monitor) RegisterEngine(e *gr.Engine, channels ChannelLister) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, found := m.engines[e.Name()]; found {
		panic(fmt.Sprintf("engine %s already registered", e.Name()))
	}

	m.engines[e.Name()] = &engineEntry{
		engine:   e,
		channels: channels,
	}
	m.order = append(m.order, e.Name())
	m.components = append(m.components, namedComponent{e.Name(), e})

	e.AcceptHook(m)
}

// RegisterComponent makes an arbitrary object browsable by name.
func (m *Monitor) RegisterComponent(name string, c any) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.components = append(m.components, namedComponent{name, c})
}

// Func records the interrupts and golden image captures of the registered
// engines.
func (m *Monitor) Func(ctx hooking.HookCtx) {
	e, ok := ctx.Domain.(*gr.Engine)
	if !ok {
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	entry := m.engines[e.Name()]
	if entry == nil {
		return
	}

	switch ctx.Pos {
	case gr.HookPosInterrupt:
		report, ok := ctx.Detail.(gr.IsrReport)
		if !ok {
			return
		}

		entry.interrupts = append(entry.interrupts, makeInterruptRecord(report))
		if len(entry.interrupts) > interruptHistory {
			entry.interrupts = entry.interrupts[1:]
		}
	case gr.HookPosGoldenCapture:
		entry.captures++
	}
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		state: ProgressState{
			ID:        xid.New().String(),
			Name:      name,
			StartTime: time.Now(),
			Total:     total,
		},
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the router that serves the API and the web page.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/engines", m.listEngines)
	r.HandleFunc("/api/engine/{name}", m.engineDetails)
	r.HandleFunc("/api/engine/{name}/channels", m.listChannels)
	r.HandleFunc("/api/engine/{name}/interrupts", m.listInterrupts)
	r.HandleFunc("/api/engine/{name}/reset", m.resetEngine).
		Methods(http.MethodPost)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns the port it
// listens on.
func (m *Monitor) StartServer() int {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	port := listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stderr,
		"Monitoring graphics engines with http://localhost:%d\n", port)

	go func() {
		err := http.Serve(listener, m.Handler())
		dieOnErr(err)
	}()

	return port
}

func (m *Monitor) listEngines(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	names := append([]string(nil), m.order...)
	m.lock.Unlock()

	writeJSON(w, names)
}

type engineRsp struct {
	gr.Snapshot
	HookedCaptures int `json:"hooked_captures"`
}

func (m *Monitor) engineDetails(w http.ResponseWriter, r *http.Request) {
	entry := m.findEngineOr404(w, mux.Vars(r)["name"])
	if entry == nil {
		return
	}

	m.lock.Lock()
	captures := entry.captures
	m.lock.Unlock()

	writeJSON(w, engineRsp{
		Snapshot:       entry.engine.Snapshot(),
		HookedCaptures: captures,
	})
}

type channelRsp struct {
	ID         int    `json:"id"`
	VPR        bool   `json:"vpr"`
	InUse      bool   `json:"in_use"`
	InstPtr    uint32 `json:"inst_ptr"`
	GrCtxVA    uint64 `json:"gr_ctx_va"`
	PatchCount uint32 `json:"patch_count"`
	NumObjects int    `json:"num_objects"`
}

func (m *Monitor) listChannels(w http.ResponseWriter, r *http.Request) {
	entry := m.findEngineOr404(w, mux.Vars(r)["name"])
	if entry == nil {
		return
	}

	rsp := []channelRsp{}
	if entry.channels != nil {
		for _, ch := range entry.channels.Channels() {
			c := ch.Ctx()
			rsp = append(rsp, channelRsp{
				ID:         ch.ID,
				VPR:        ch.VPR,
				InUse:      ch.InUse(),
				InstPtr:    ch.InstPtr(),
				GrCtxVA:    c.GrCtxVA,
				PatchCount: c.Patch.DataCount,
				NumObjects: c.NumObjects,
			})
		}
	}

	sort.Slice(rsp, func(i, j int) bool { return rsp[i].ID < rsp[j].ID })

	writeJSON(w, rsp)
}

type interruptRecord struct {
	Time      time.Time `json:"time"`
	Intr      string    `json:"intr"`
	Unhandled string    `json:"unhandled"`
	ChannelID int       `json:"channel_id"`
	Class     string    `json:"class"`
	Method    string    `json:"method"`
	Reset     bool      `json:"reset"`
	TornDown  bool      `json:"torn_down"`
	Error     string    `json:"error,omitempty"`
}

func makeInterruptRecord(r gr.IsrReport) interruptRecord {
	rec := interruptRecord{
		Time:      time.Now(),
		Intr:      fmt.Sprintf("0x%08x", r.Intr),
		Unhandled: fmt.Sprintf("0x%08x", r.Unhandled),
		ChannelID: r.ChannelID,
		Class:     fmt.Sprintf("0x%04x", r.Class),
		Method:    fmt.Sprintf("0x%04x", r.Offset<<2),
		Reset:     r.Reset,
		TornDown:  r.TornDown,
	}

	if r.Err != nil {
		rec.Error = r.Err.Error()
	}

	return rec
}

func (m *Monitor) listInterrupts(w http.ResponseWriter, r *http.Request) {
	entry := m.findEngineOr404(w, mux.Vars(r)["name"])
	if entry == nil {
		return
	}

	m.lock.Lock()
	records := append([]interruptRecord{}, entry.interrupts...)
	m.lock.Unlock()

	writeJSON(w, records)
}

func (m *Monitor) resetEngine(w http.ResponseWriter, r *http.Request) {
	entry := m.findEngineOr404(w, mux.Vars(r)["name"])
	if entry == nil {
		return
	}

	if err := entry.engine.Reset(r.Context()); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, err = fmt.Fprintf(w, "Error: %s", err)
		dieOnErr(err)

		return
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.name)
	}
	m.lock.Unlock()

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, err = fmt.Fprintf(w, "Error: %s", err)
		dieOnErr(err)

		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	if _, err := m.walkFields(component, req.FieldName); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, err = fmt.Fprintf(w, "Error: %s", err)
		dieOnErr(err)

		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	dieOnErr(err)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type fieldFormatError struct {
	field string
}

func (e fieldFormatError) Error() string {
	return fmt.Sprintf("field %q cannot be resolved", e.field)
}

// walkFields follows a dot separated path of field names and slice
// indices from comp.
func (m *Monitor) walkFields(
	comp interface{},
	fields string,
) (reflect.Value, error) {
	elem := reflect.ValueOf(comp)

	fieldNames := strings.Split(fields, ".")

	for len(fieldNames) > 0 {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface:
			if elem.IsNil() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			elem = elem.Elem()
		case reflect.Struct:
			elem = elem.FieldByName(fieldNames[0])
			if !elem.IsValid() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			fieldNames = fieldNames[1:]
		case reflect.Slice, reflect.Array:
			index, err := strconv.Atoi(fieldNames[0])
			if err != nil || index < 0 || index >= elem.Len() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			elem = elem.Index(index)
			fieldNames = fieldNames[1:]
		default:
			return elem, fieldFormatError{fieldNames[0]}
		}
	}

	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	return elem, nil
}

func (m *Monitor) findEngineOr404(
	w http.ResponseWriter,
	name string,
) *engineEntry {
	m.lock.Lock()
	entry := m.engines[name]
	m.lock.Unlock()

	if entry == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Engine not found"))
		dieOnErr(err)
	}

	return entry
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) any {
	m.lock.Lock()
	var component any
	for _, c := range m.components {
		if c.name == name {
			component = c.comp
		}
	}
	m.lock.Unlock()

	if component == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Component not found"))
		dieOnErr(err)
	}

	return component
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bytes, err := json.Marshal(m.progressBars)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
