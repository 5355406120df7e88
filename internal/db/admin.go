package db

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/visionassist/internal/detect"
	"github.com/banshee-data/visionassist/internal/httputil"
)

const defaultChartPoints = 500

// AttachAdminRoutes mounts the journal debug pages under /debug/: live SQL,
// a gzipped backup download, a sensor timeline and a per-class distance plot.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://journal.db", db.DB, &tailsql.DBOptions{
		Label: "Navigation journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the journal now", http.HandlerFunc(db.handleBackup))
	debug.Handle("sensor-chart", "Timeline of recent proximity readings", http.HandlerFunc(db.handleSensorChart))
	debug.Handle("distance-plot", "PNG of camera distance estimates (?class=person)", http.HandlerFunc(db.handleDistancePlot))
	return nil
}

const maxChartPoints = 50000

func limitParam(r *http.Request, def int) int {
	if v, err := httputil.QueryLimit(r, def, maxChartPoints); err == nil {
		return v
	}
	return def
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("journal-backup-%d.db", time.Now().Unix()))
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			logs.Opsf("failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		logs.Opsf("failed to stream backup: %v", err)
	}
}

func (db *DB) handleSensorChart(w http.ResponseWriter, r *http.Request) {
	readings, err := db.RecentReadings(limitParam(r, defaultChartPoints))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load readings: %v", err), http.StatusInternalServerError)
		return
	}

	series := map[detect.Direction][]opts.LineData{}
	// readings arrive newest first
	for i := len(readings) - 1; i >= 0; i-- {
		rd := readings[i]
		series[rd.Direction] = append(series[rd.Direction], opts.LineData{
			Value: []interface{}{rd.At.Format(time.RFC3339Nano), rd.DistanceCM},
		})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Proximity sensor", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Proximity readings", Subtitle: fmt.Sprintf("points=%d", len(readings))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Distance (cm)", Min: 0}),
	)
	for _, d := range []detect.Direction{detect.Left, detect.Front, detect.Right} {
		line.AddSeries(d.String(), series[d])
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (db *DB) handleDistancePlot(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("class")
	if class == "" {
		http.Error(w, "missing class parameter", http.StatusBadRequest)
		return
	}
	points, err := db.DistanceSeries(class, limitParam(r, defaultChartPoints))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load detections: %v", err), http.StatusInternalServerError)
		return
	}
	if len(points) == 0 {
		http.Error(w, fmt.Sprintf("no detections for %q", class), http.StatusNotFound)
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Camera distance - %s", class)
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Distance (cm)"

	t0 := points[0].At
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: pt.At.Sub(t0).Seconds(), Y: pt.DistanceCM}
	}
	ln, err := plotter.NewLine(xys)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build plot: %v", err), http.StatusInternalServerError)
		return
	}
	ln.Width = vg.Points(1)
	ln.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(ln, plotter.NewGrid())

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to render plot: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		logs.Opsf("failed to write plot: %v", err)
	}
}
