package filter

import (
	"context"
	"encoding/binary"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/logv/kruda/heap"
	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/internal/klog"
	"github.com/logv/kruda/internal/metrics"
	"github.com/logv/kruda/table"
	"github.com/logv/kruda/types"
)

// defaultBatchSize is the number of rows a worker reserves in one
// atomic bump of next_row_to_scan.
const defaultBatchSize = 1024

// ResultFieldKind selects what a result field holds for each matched row.
type ResultFieldKind int

const (
	FieldRowIndex ResultFieldKind = iota
	FieldColumn
)

// ResultField is one column of a filter run's output: either the
// matched row's own index, or a verbatim copy of one of the source
// table's columns under a new name.
type ResultField struct {
	Kind   ResultFieldKind
	Column string
	Alias  string
}

// Result is what Engine.Run produces: a full projection table, or —
// when the only requested field is ROW_INDEX — the cheaper proxy table,
// which never copies source bytes.
type Result struct {
	Table *table.Table
	Proxy *table.ProxyTable
}

// Engine runs a compiled expression across a source table's rows in
// parallel: atomic chunk counters handed out to a fixed worker pool via
// golang.org/x/sync/errgroup, whose cancel-on-first-error semantics mean
// one worker's failure stops the others instead of running every
// reserved batch to completion first.
type Engine struct {
	source     *table.Table
	outputHeap *heap.Heap
	metrics    metrics.Registry
	workers    int
	batchSize  uint32
	fields     []ResultField
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithOutputHeap overrides the heap a result table is allocated from.
// Default is the source table's own heap.
func WithOutputHeap(h *heap.Heap) Option {
	return func(e *Engine) { e.outputHeap = h }
}

// WithWorkers sets the worker pool size. Default is GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithBatchSize overrides B, the row-batch size each worker reserves at
// a time. Default is 1024.
func WithBatchSize(n uint32) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMetrics attaches a metrics.Registry; default is metrics.NoOp.
func WithMetrics(reg metrics.Registry) Option {
	return func(e *Engine) { e.metrics = reg }
}

// NewEngine builds an engine over source. With no fields, the result is
// a single ROW_INDEX column, which is always proxy-eligible — the
// shape a plain row-matching filter wants.
func NewEngine(source *table.Table, fields []ResultField, opts ...Option) *Engine {
	if len(fields) == 0 {
		fields = []ResultField{{Kind: FieldRowIndex, Alias: "row_index"}}
	}
	e := &Engine{
		source:     source,
		outputHeap: source.Block().Heap(),
		metrics:    metrics.NoOp,
		workers:    runtime.GOMAXPROCS(0),
		batchSize:  defaultBatchSize,
		fields:     fields,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// resolvedField is a ResultField after its alias has defaulted and, for
// FieldColumn, its source column descriptor has been resolved.
type resolvedField struct {
	kind     ResultFieldKind
	alias    string
	source   string
	typeID   types.ID
	width    uint32
}

func (e *Engine) resolveFields() ([]resolvedField, []table.ColumnSpec, error) {
	out := make([]resolvedField, len(e.fields))
	specs := make([]table.ColumnSpec, len(e.fields))

	for i, f := range e.fields {
		switch f.Kind {
		case FieldRowIndex:
			alias := f.Alias
			if alias == "" {
				alias = "row_index"
			}
			out[i] = resolvedField{kind: FieldRowIndex, alias: alias, typeID: types.U32, width: 4}
			specs[i] = table.ColumnSpec{Name: alias, TypeID: types.U32}
		case FieldColumn:
			col, _, err := e.source.ColumnByName(f.Column)
			if err != nil {
				return nil, nil, err
			}
			alias := f.Alias
			if alias == "" {
				alias = f.Column
			}
			out[i] = resolvedField{kind: FieldColumn, alias: alias, source: f.Column, typeID: col.TypeID, width: col.FieldLength}
			specs[i] = table.ColumnSpec{Name: alias, TypeID: col.TypeID, Size: col.FieldLength}
		default:
			return nil, nil, errs.SchemaMismatch("unknown result field kind %d", f.Kind)
		}
	}
	return out, specs, nil
}

func (e *Engine) isProxyEligible() bool {
	return len(e.fields) == 1 && e.fields[0].Kind == FieldRowIndex
}

// rowWriter writes one resolved field of the current matched row into
// the result table's slot-th row. It is built once per worker, against
// that worker's own source cursor, so there is no per-field dispatch
// cost on the per-row hot path.
type rowWriter func(slot uint32)

func buildRowWriters(resultTable *table.Table, resolved []resolvedField, cursor *table.Cursor) ([]rowWriter, error) {
	block := resultTable.Block()
	dataBase := resultTable.Header().HeaderLength()
	rowStep := resultTable.RowStep()

	writers := make([]rowWriter, len(resolved))
	for i, f := range resolved {
		col, _, err := resultTable.ColumnByName(f.alias)
		if err != nil {
			return nil, err
		}
		fieldOffset, fieldLength := col.FieldOffset, col.FieldLength

		if f.kind == FieldRowIndex {
			writers[i] = func(slot uint32) {
				start := dataBase + slot*rowStep + fieldOffset
				binary.LittleEndian.PutUint32(block.View()[start:start+fieldLength], cursor.Index())
			}
			continue
		}

		get, _, err := cursor.FieldAccessor(f.source)
		if err != nil {
			return nil, err
		}
		writers[i] = func(slot uint32) {
			start := dataBase + slot*rowStep + fieldOffset
			copy(block.View()[start:start+fieldLength], get())
		}
	}
	return writers, nil
}

// counters holds the two atomically-reserved words a run needs —
// next_row_to_scan and next_result_slot — as a real heap-allocated block
// rather than two bare Go atomics, so a run's bookkeeping follows the
// same atomics-over-shared-bytes idiom as the heap and table header
// words (heap/heap.go, table/header.go).
type counters struct {
	block heap.Block
}

func newCounters(h *heap.Heap) (counters, error) {
	b, err := h.AllocateZeroed(8)
	if err != nil {
		return counters{}, err
	}
	return counters{block: b}, nil
}

func (c counters) nextRow() *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&c.block.View()[0]))
}

func (c counters) nextSlot() *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&c.block.View()[4]))
}

// Run executes expr/mode against the source table: validate, allocate a
// worst-case result table, reserve counters, run the worker pool, then
// finalize the header and shrink the allocation to what was actually
// used.
func (e *Engine) Run(ctx context.Context, expr Expression, mode Mode) (Result, error) {
	if err := Validate(e.source, expr); err != nil {
		return Result{}, err
	}

	resolved, specs, err := e.resolveFields()
	if err != nil {
		return Result{}, err
	}

	var rowWidth uint32
	for _, f := range resolved {
		rowWidth += f.width
	}

	sourceRowCount := e.source.RowCount()
	resultTable, err := table.Create(e.outputHeap, specs, rowWidth*sourceRowCount, table.RowMajor)
	if err != nil {
		return Result{}, err
	}

	cnt, err := newCounters(e.outputHeap)
	if err != nil {
		e.outputHeap.Free(resultTable.Block())
		return Result{}, err
	}
	defer e.outputHeap.Free(cnt.block)

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < e.workers; w++ {
		g.Go(func() error {
			cursor := table.NewCursor(e.source)
			predicate, err := CompileForCursor(e.source, expr, mode, cursor)
			if err != nil {
				return err
			}
			writers, err := buildRowWriters(resultTable, resolved, cursor)
			if err != nil {
				return err
			}

			for {
				if gctx.Err() != nil {
					return nil
				}
				base := cnt.nextRow().Add(e.batchSize) - e.batchSize
				if base >= sourceRowCount {
					return nil
				}
				end := base + e.batchSize
				if end > sourceRowCount {
					end = sourceRowCount
				}
				for i := base; i < end; i++ {
					if err := cursor.Seek(i); err != nil {
						return err
					}
					e.metrics.FilterRowsScanned().Inc()
					if predicate() {
						slot := cnt.nextSlot().Add(1) - 1
						for _, w := range writers {
							w(slot)
						}
						e.metrics.FilterRowsMatched().Inc()
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		e.outputHeap.Free(resultTable.Block())
		return Result{}, errs.WorkerFailure(err)
	}

	matched := cnt.nextSlot().Load()
	resultTable.Header().SetRowCount(matched)
	resultTable.Header().SetDataLength(matched * rowWidth)

	used := resultTable.Header().HeaderLength() + matched*rowWidth
	if used < resultTable.Block().PayloadSize() {
		if err := resultTable.Shrink(e.outputHeap, used); err != nil {
			return Result{}, err
		}
	}

	e.metrics.FilterRunDuration().Observe(time.Since(started).Seconds())
	klog.Debug("filter.run", "scanned", sourceRowCount, "matched", matched, "workers", e.workers)

	if e.isProxyEligible() {
		proxy, err := table.NewProxyTable(e.source, resultTable)
		if err != nil {
			return Result{}, err
		}
		return Result{Proxy: proxy}, nil
	}
	return Result{Table: resultTable}, nil
}

// CountMatches runs expr/mode across source purely for its match count,
// without allocating or writing any result table — a cheaper path for
// callers that only need to know how many rows would match.
func (e *Engine) CountMatches(ctx context.Context, expr Expression, mode Mode) (uint32, error) {
	if err := Validate(e.source, expr); err != nil {
		return 0, err
	}

	sourceRowCount := e.source.RowCount()
	var nextRow atomic.Uint32
	var matched atomic.Uint32

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < e.workers; w++ {
		g.Go(func() error {
			cursor := table.NewCursor(e.source)
			predicate, err := CompileForCursor(e.source, expr, mode, cursor)
			if err != nil {
				return err
			}
			for {
				if gctx.Err() != nil {
					return nil
				}
				base := nextRow.Add(e.batchSize) - e.batchSize
				if base >= sourceRowCount {
					return nil
				}
				end := base + e.batchSize
				if end > sourceRowCount {
					end = sourceRowCount
				}
				for i := base; i < end; i++ {
					if err := cursor.Seek(i); err != nil {
						return err
					}
					e.metrics.FilterRowsScanned().Inc()
					if predicate() {
						matched.Add(1)
						e.metrics.FilterRowsMatched().Inc()
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return 0, errs.WorkerFailure(err)
	}
	return matched.Load(), nil
}
