package storage

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/mmynk/quozen/internal/storage")

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quozen",
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Storage service operations by result.",
	}, []string{"op", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quozen",
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Storage service operation latency, including every adapter round trip.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quozen",
		Subsystem: "storage",
		Name:      "conflicts_total",
		Help:      "Row mutations rejected because the row changed underneath the caller.",
	}, []string{"op"})
)

// begin opens a span for op and returns a func that records its outcome.
// Callers use a named error return: defer end(&err).
func begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "storage."+op)
	span.SetAttributes(attrs...)

	return ctx, func(errp *error) {
		result := "ok"
		if errp != nil && *errp != nil {
			err := *errp
			result = "error"
			if k := KindOf(err); k != 0 {
				result = k.String()
			}
			var se *Error
			if errors.As(err, &se) && se.Kind == KindConflict {
				conflictsTotal.WithLabelValues(op).Inc()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		operationsTotal.WithLabelValues(op, result).Inc()
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}
}

var (
	adapterCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quozen",
		Subsystem: "adapter",
		Name:      "calls_total",
		Help:      "Round trips to the backing document store by method and result.",
	}, []string{"method", "result"})

	adapterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quozen",
		Subsystem: "adapter",
		Name:      "call_duration_seconds",
		Help:      "Backing document store round-trip latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

// Instrument wraps adapter so every call is counted and timed.
func Instrument(adapter Adapter) Adapter {
	return &instrumentedAdapter{next: adapter}
}

type instrumentedAdapter struct {
	next Adapter
}

func observe(method string, start time.Time, errp *error) {
	result := "ok"
	if err := *errp; err != nil {
		result = "error"
		if k := KindOf(err); k != 0 {
			result = k.String()
		}
	}
	adapterCalls.WithLabelValues(method, result).Inc()
	adapterDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

func (a *instrumentedAdapter) CreateFile(ctx context.Context, req CreateFileRequest) (id string, err error) {
	defer observe("CreateFile", time.Now(), &err)
	return a.next.CreateFile(ctx, req)
}

func (a *instrumentedAdapter) DeleteFile(ctx context.Context, fileID string) (err error) {
	defer observe("DeleteFile", time.Now(), &err)
	return a.next.DeleteFile(ctx, fileID)
}

func (a *instrumentedAdapter) RenameFile(ctx context.Context, fileID, name string) (err error) {
	defer observe("RenameFile", time.Now(), &err)
	return a.next.RenameFile(ctx, fileID, name)
}

func (a *instrumentedAdapter) ShareFile(ctx context.Context, fileID, principal, role string) (name string, err error) {
	defer observe("ShareFile", time.Now(), &err)
	return a.next.ShareFile(ctx, fileID, principal, role)
}

func (a *instrumentedAdapter) SetPermissions(ctx context.Context, fileID string, access Access) (err error) {
	defer observe("SetPermissions", time.Now(), &err)
	return a.next.SetPermissions(ctx, fileID, access)
}

func (a *instrumentedAdapter) GetPermissions(ctx context.Context, fileID string) (access Access, err error) {
	defer observe("GetPermissions", time.Now(), &err)
	return a.next.GetPermissions(ctx, fileID)
}

func (a *instrumentedAdapter) AddProperties(ctx context.Context, fileID string, props map[string]string) (err error) {
	defer observe("AddProperties", time.Now(), &err)
	return a.next.AddProperties(ctx, fileID, props)
}

func (a *instrumentedAdapter) ListFiles(ctx context.Context, filter ListFilter) (files []FileInfo, err error) {
	defer observe("ListFiles", time.Now(), &err)
	return a.next.ListFiles(ctx, filter)
}

func (a *instrumentedAdapter) GetFileMeta(ctx context.Context, fileID string) (meta *FileMeta, err error) {
	defer observe("GetFileMeta", time.Now(), &err)
	return a.next.GetFileMeta(ctx, fileID)
}

func (a *instrumentedAdapter) ReadRange(ctx context.Context, fileID, tab string) (rows [][]string, err error) {
	defer observe("ReadRange", time.Now(), &err)
	return a.next.ReadRange(ctx, fileID, tab)
}

func (a *instrumentedAdapter) Initialize(ctx context.Context, fileID string, tabs map[string][][]string) (err error) {
	defer observe("Initialize", time.Now(), &err)
	return a.next.Initialize(ctx, fileID, tabs)
}

func (a *instrumentedAdapter) AppendRow(ctx context.Context, fileID, tab string, row []string) (position int, err error) {
	defer observe("AppendRow", time.Now(), &err)
	return a.next.AppendRow(ctx, fileID, tab, row)
}

func (a *instrumentedAdapter) UpdateRow(ctx context.Context, fileID, tab string, position int, row []string) (err error) {
	defer observe("UpdateRow", time.Now(), &err)
	return a.next.UpdateRow(ctx, fileID, tab, position, row)
}

func (a *instrumentedAdapter) DeleteRow(ctx context.Context, fileID, tab string, position int) (err error) {
	defer observe("DeleteRow", time.Now(), &err)
	return a.next.DeleteRow(ctx, fileID, tab, position)
}

func (a *instrumentedAdapter) ReadRow(ctx context.Context, fileID, tab string, position int) (row []string, err error) {
	defer observe("ReadRow", time.Now(), &err)
	return a.next.ReadRow(ctx, fileID, tab, position)
}

func (a *instrumentedAdapter) ReadContent(ctx context.Context, fileID string) (data []byte, err error) {
	defer observe("ReadContent", time.Now(), &err)
	return a.next.ReadContent(ctx, fileID)
}

func (a *instrumentedAdapter) WriteContent(ctx context.Context, fileID string, data []byte) (err error) {
	defer observe("WriteContent", time.Now(), &err)
	return a.next.WriteContent(ctx, fileID, data)
}
