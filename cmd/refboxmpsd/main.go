// Command refboxmpsd is an example composition root wiring configuration
// to a Fleet and Engine Bridge: load config, build stations, run the
// tick loop, and expose a small HTTP status surface. The rule engine
// itself is an external collaborator; this binary uses enginebridge.NopEngine
// unless a real binding is wired in by a deployment-specific build.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/cors"

	"github.com/rcll/mps-refbox/enginebridge"
	"github.com/rcll/mps-refbox/fleet"
	"github.com/rcll/mps-refbox/mpsconfig"
	"github.com/rcll/mps-refbox/mpslog"
)

func main() {
	configPath := flag.String("config", "refboxmps.toml", "path to the MPS TOML configuration file")
	httpAddr := flag.String("http", "127.0.0.1:8787", "address the status HTTP endpoint listens on")
	flag.Parse()

	cfg, err := mpsconfig.Load(*configPath)
	if err != nil {
		mpslog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	if !cfg.Enable {
		mpslog.Info("mps disabled in configuration, exiting")
		return
	}

	engine := enginebridge.NewNopEngine()
	fl, bridge, err := mpsconfig.NewBridge(cfg, engine)
	if err != nil {
		mpslog.Error("failed to build fleet", "err", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	dump := make(chan os.Signal, 1)
	signal.Notify(dump, syscall.SIGUSR1)

	tickStop := make(chan struct{})
	go serveHTTP(*httpAddr, fl)
	go runTickLoop(cfg.TickInterval(), bridge, tickStop)

	for {
		select {
		case <-dump:
			dumpTable(fl)
		case <-stop:
			mpslog.Info("shutting down")
			close(tickStop)
			fl.Shutdown(5 * time.Second)
			return
		}
	}
}

// runTickLoop drives Fleet.Process/Bridge.Tick on the configured
// interval. The Fleet never owns its own clock — this external ticker
// is the only thing that calls Tick, matching the inverted-control
// design where the tick is "driven by an external timer".
func runTickLoop(interval time.Duration, bridge *enginebridge.Bridge, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			bridge.Tick()
		case <-stop:
			return
		}
	}
}

func dumpTable(fl *fleet.Fleet) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Station", "Ready", "Busy", "Barcode", "Bases"})
	for _, name := range fl.Names() {
		s, ok := fl.Station(name)
		if !ok {
			continue
		}
		snap := s.Snapshot()
		table.Append([]string{
			name,
			boolCell(snap.ReadyIn),
			boolCell(snap.BusyIn),
			strconv.Itoa(int(snap.BarcodeIn)),
			strconv.Itoa(int(snap.SlideCounter)),
		})
	}
	table.Render()
}

func boolCell(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// serveHTTP exposes the fleet status snapshot as JSON, an ambient
// observability surface alongside the core protocol rather than part of
// it — the same role geth's own HTTP endpoint plays next to the p2p
// protocol it serves.
func serveHTTP(addr string, fl *fleet.Fleet) {
	router := httprouter.New()
	router.GET("/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		type stationStatus struct {
			Name      string `json:"name"`
			ReadyIn   bool   `json:"ready_in"`
			BusyIn    bool   `json:"busy_in"`
			BarcodeIn int32  `json:"barcode_in"`
			NumBases  uint16 `json:"num_bases"`
		}
		ticks := fl.Process()
		out := make([]stationStatus, 0, len(ticks))
		for _, t := range ticks {
			s, ok := fl.Station(t.Name)
			if !ok {
				continue
			}
			snap := s.Snapshot()
			out = append(out, stationStatus{
				Name:      t.Name,
				ReadyIn:   snap.ReadyIn,
				BusyIn:    snap.BusyIn,
				BarcodeIn: snap.BarcodeIn,
				NumBases:  t.NumBases,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	handler := cors.Default().Handler(router)
	mpslog.Info("status endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		mpslog.Error("status endpoint stopped", "err", err)
	}
}
