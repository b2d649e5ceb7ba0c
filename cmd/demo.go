package cmd

import (
	"context"
	"fmt"

	"github.com/logv/kruda/filter"
	"github.com/logv/kruda/heap"
	"github.com/logv/kruda/internal/config"
	"github.com/logv/kruda/internal/klog"
	"github.com/logv/kruda/table"
	"github.com/logv/kruda/types"
)

// buildDemoTable builds the small flights table used throughout this
// module's tests, for a command line that has nothing on disk to
// ingest.
func buildDemoTable() (*table.Table, error) {
	h, err := heap.NewRegion(1 << 16)
	if err != nil {
		return nil, err
	}

	specs := []table.ColumnSpec{
		{Name: "origin", TypeID: types.BSTR, Size: 8},
		{Name: "dest", TypeID: types.BSTR, Size: 8},
		{Name: "passengers", TypeID: types.U32},
		{Name: "date", TypeID: types.BSTR, Size: 16},
		{Name: "distance", TypeID: types.F32},
	}
	tbl, err := table.Create(h, specs, 64*3, table.RowMajor)
	if err != nil {
		return nil, err
	}
	if _, err := tbl.AddRows(3); err != nil {
		return nil, err
	}

	rows := []struct {
		origin, dest, date string
		passengers         uint64
		distance           float32
	}{
		{"SEA", "SFO", "2001-06-01", 110, 1089.0},
		{"SEA", "LAX", "1999-12-31", 110, 1550.0},
		{"MCO", "JFK", "2001-03-14", 190, 1080.0},
	}

	c := table.NewCursor(tbl)
	for i, r := range rows {
		if err := c.Seek(uint32(i)); err != nil {
			return nil, err
		}
		if _, err := c.SetString("origin", r.origin); err != nil {
			return nil, err
		}
		if _, err := c.SetString("dest", r.dest); err != nil {
			return nil, err
		}
		if err := c.SetUint("passengers", r.passengers); err != nil {
			return nil, err
		}
		if _, err := c.SetString("date", r.date); err != nil {
			return nil, err
		}
		if err := c.SetFloat32("distance", r.distance); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// RunDemoCmdLine builds the demo table, filters it for origin == SEA,
// and prints the matched rows.
func RunDemoCmdLine() {
	tbl, err := buildDemoTable()
	if err != nil {
		klog.Error("demo: building table", err)
		return
	}

	opts := config.FromEnv()
	engine := filter.NewEngine(tbl, nil,
		filter.WithWorkers(opts.WorkerCount),
		filter.WithBatchSize(uint32(opts.BatchSize)),
	)
	expr := filter.Expression{{{Field: "origin", Operation: filter.OpEqual, Value: "SEA"}}}
	result, err := engine.Run(context.Background(), expr, filter.DNF)
	if err != nil {
		klog.Error("demo: running filter", err)
		return
	}

	pc := table.NewProxyCursor(result.Proxy)
	for i := uint32(0); i < result.Proxy.RowCount(); i++ {
		if err := pc.Seek(i); err != nil {
			klog.Error("demo: seeking proxy row", err)
			return
		}
		origin, _ := pc.StringCopy("origin")
		dest, _ := pc.StringCopy("dest")
		distance, _ := pc.Float32("distance")
		fmt.Printf("%s -> %s (%.0f mi)\n", origin, dest, distance)
	}
}
