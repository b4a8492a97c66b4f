package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/datapipe/internal/data"
)

// WriteStats counts what a write stored.
type WriteStats struct {
	// Objects is the number of full rows written.
	Objects int
	// Links is the number of link rows written for shared objects.
	Links int
	// PayloadBytes is the total size of array and string payloads.
	PayloadBytes int64
}

const insertEntry = `
	INSERT INTO entries
	(path, parent_path, ord, name, object_id, kind, link_target, attrs, data_type, tuple_shape, component_shape, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// geometryAttrs is the attrs column of a geometry row.
type geometryAttrs struct {
	Type       data.GeometryType `json:"type"`
	Dimensions [3]int            `json:"dimensions"`
	Spacing    [3]float64        `json:"spacing"`
	Origin     [3]float64        `json:"origin"`
}

// Write stores ds in a single transaction. The container must be empty.
func (f *File) Write(ctx context.Context, ds *data.Structure) (WriteStats, error) {
	ctx, span := tracer.Start(ctx, "container.write")
	defer span.End()

	stats, err := f.write(ctx, ds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return WriteStats{}, err
	}
	span.SetAttributes(
		attribute.Int("container.objects", stats.Objects),
		attribute.Int("container.links", stats.Links),
		attribute.Int64("container.payload_bytes", stats.PayloadBytes),
	)
	slog.Debug("container written",
		"path", f.path,
		"objects", stats.Objects,
		"links", stats.Links,
		"payload_bytes", stats.PayloadBytes,
	)
	return stats, nil
}

func (f *File) write(ctx context.Context, ds *data.Structure) (WriteStats, error) {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return WriteStats{}, fmt.Errorf("write container: %w", err)
	}
	defer tx.Rollback()

	meta := [][2]string{
		{"format_version", strconv.Itoa(FormatVersion)},
		{"next_id", strconv.FormatUint(uint64(ds.NextID()), 10)},
		{"root_group", RootGroup},
		{"writer", "datapipe"},
	}
	for _, kv := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, kv[0], kv[1]); err != nil {
			return WriteStats{}, fmt.Errorf("write meta %s: %w", kv[0], err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, insertEntry)
	if err != nil {
		return WriteStats{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	w := &writer{
		stmt:    stmt,
		written: make(map[data.ID]string),
		ord:     make(map[string]int),
	}
	ds.Walk(func(p data.Path, obj data.Object) bool {
		if w.err != nil {
			return false
		}
		w.err = w.entry(ctx, p, obj)
		// Link rows stand for the whole subtree already written.
		return w.err == nil && w.written[obj.ID()] == p.String()
	})
	if w.err != nil {
		return WriteStats{}, w.err
	}

	if err := tx.Commit(); err != nil {
		return WriteStats{}, fmt.Errorf("commit container: %w", err)
	}
	return w.stats, nil
}

// writer accumulates state across one walk.
type writer struct {
	stmt    *sql.Stmt
	written map[data.ID]string
	ord     map[string]int
	stats   WriteStats
	err     error
}

func (w *writer) entry(ctx context.Context, p data.Path, obj data.Object) error {
	path := p.String()
	parent := p.Parent().String()
	ord := w.ord[parent]
	w.ord[parent] = ord + 1

	if target, ok := w.written[obj.ID()]; ok {
		_, err := w.stmt.ExecContext(ctx,
			path, parent, ord, obj.Name(), int64(obj.ID()), obj.Kind().String(),
			target, "{}", nil, nil, nil, nil,
		)
		if err != nil {
			return fmt.Errorf("write link %s: %w", path, err)
		}
		w.stats.Links++
		return nil
	}

	row, err := encodeObject(obj)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	var payload any
	if row.payload != nil {
		payload = row.payload
	}
	_, err = w.stmt.ExecContext(ctx,
		path, parent, ord, obj.Name(), int64(obj.ID()), obj.Kind().String(),
		nil, row.attrs, row.dtype, row.tuples, row.components, payload,
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.written[obj.ID()] = path
	w.stats.Objects++
	w.stats.PayloadBytes += int64(len(row.payload))
	return nil
}

// objectRow holds the kind-specific columns of a full row. Nil fields are
// stored as NULL; a nil payload marks a placeholder array.
type objectRow struct {
	attrs      string
	dtype      any
	tuples     any
	components any
	payload    []byte
}

func encodeObject(obj data.Object) (objectRow, error) {
	row := objectRow{attrs: "{}"}
	switch o := obj.(type) {
	case *data.Group:
	case *data.AttributeMatrix:
		row.tuples = shapeJSON(o.TupleShape)
	case *data.Geometry:
		b, err := json.Marshal(geometryAttrs{
			Type:       o.Type,
			Dimensions: o.Dimensions,
			Spacing:    o.Spacing,
			Origin:     o.Origin,
		})
		if err != nil {
			return objectRow{}, fmt.Errorf("encode geometry: %w", err)
		}
		row.attrs = string(b)
	case *data.Array:
		row.dtype = o.DataType().String()
		row.tuples = shapeJSON(o.TupleShape)
		row.components = shapeJSON(o.ComponentShape)
		if !o.Placeholder() {
			b, err := o.Store().Bytes()
			if err != nil {
				return objectRow{}, fmt.Errorf("read payload: %w", err)
			}
			row.payload = b
		}
	case *data.StringArray:
		row.tuples = shapeJSON([]int{o.NumTuples()})
		b, err := json.Marshal(o.Values)
		if err != nil {
			return objectRow{}, fmt.Errorf("encode strings: %w", err)
		}
		row.payload = b
	default:
		return objectRow{}, fmt.Errorf("unsupported object kind %s", obj.Kind())
	}
	return row, nil
}

func shapeJSON(shape []int) string {
	if shape == nil {
		shape = []int{}
	}
	b, _ := json.Marshal(shape)
	return string(b)
}
