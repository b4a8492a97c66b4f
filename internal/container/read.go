package container

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/datapipe/internal/data"
)

// Read rebuilds the stored structure. Object IDs, shared parents, DataMap
// order and the ID counter are restored as written.
func (f *File) Read(ctx context.Context, mode ReadMode) (*data.Structure, error) {
	ctx, span := tracer.Start(ctx, "container.read",
		trace.WithAttributes(attribute.String("container.mode", mode.String())))
	defer span.End()

	ds, err := f.read(ctx, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("container.objects", ds.Len()))
	slog.Debug("container read", "path", f.path, "mode", mode.String(), "objects", ds.Len())
	return ds, nil
}

func (f *File) read(ctx context.Context, mode ReadMode) (*data.Structure, error) {
	meta, err := f.Meta(ctx)
	if err != nil {
		return nil, err
	}
	if meta.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("container format %d is newer than supported %d", meta.FormatVersion, FormatVersion)
	}

	r := &reader{db: f.db, mode: mode, ds: data.NewStructure()}
	if err := r.children(ctx, data.Path{}); err != nil {
		return nil, err
	}
	r.ds.SetNextID(meta.NextID)
	if err := r.ds.Validate(); err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}
	return r.ds, nil
}

// entry is one scanned row. Payload stays nil in preflight mode.
type entry struct {
	name       string
	id         data.ID
	kind       string
	linkTarget sql.NullString
	attrs      string
	dtype      sql.NullString
	tuples     sql.NullString
	components sql.NullString
	payload    []byte
}

type reader struct {
	db   *sql.DB
	mode ReadMode
	ds   *data.Structure
}

// children restores the entries under parent depth-first, the order they
// were written in, so a link row never precedes its target.
func (r *reader) children(ctx context.Context, parent data.Path) error {
	entries, err := r.query(ctx, parent)
	if err != nil {
		return err
	}

	for _, e := range entries {
		p := parent.Child(e.name)
		if e.linkTarget.Valid {
			if err := r.ds.AddParent(e.id, parent); err != nil {
				return fmt.Errorf("read link %s -> %s: %w", p, e.linkTarget.String, err)
			}
			continue
		}
		obj, err := r.decode(e)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if err := data.AssignID(obj, e.id); err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if _, err := r.ds.Insert(obj, parent); err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if _, ok := obj.(data.Container); ok {
			if err := r.children(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// query loads one level. Rows are closed before the caller descends since
// the pool holds a single connection.
func (r *reader) query(ctx context.Context, parent data.Path) ([]entry, error) {
	cols := "name, object_id, kind, link_target, attrs, data_type, tuple_shape, component_shape"
	if r.mode == ReadFull {
		cols += ", payload"
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cols+` FROM entries WHERE parent_path = ? ORDER BY ord ASC`,
		parent.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query entries of %q: %w", parent.String(), err)
	}
	defer rows.Close()

	var out []entry
	for rows.Next() {
		var e entry
		var id int64
		dest := []any{&e.name, &id, &e.kind, &e.linkTarget, &e.attrs, &e.dtype, &e.tuples, &e.components}
		if r.mode == ReadFull {
			dest = append(dest, &e.payload)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.id = data.ID(id)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (r *reader) decode(e entry) (data.Object, error) {
	kind, err := data.ParseKind(e.kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case data.KindGroup:
		return data.NewGroup(e.name), nil

	case data.KindAttributeMatrix:
		tuples, err := parseShape(e.tuples)
		if err != nil {
			return nil, err
		}
		return data.NewAttributeMatrix(e.name, tuples), nil

	case data.KindGeometry:
		var attrs geometryAttrs
		if err := json.Unmarshal([]byte(e.attrs), &attrs); err != nil {
			return nil, fmt.Errorf("decode geometry attrs: %w", err)
		}
		if !attrs.Type.Valid() {
			return nil, fmt.Errorf("unknown geometry type %q", attrs.Type)
		}
		g := data.NewGeometry(e.name, attrs.Type)
		g.Dimensions = attrs.Dimensions
		g.Spacing = attrs.Spacing
		g.Origin = attrs.Origin
		return g, nil

	case data.KindArray:
		if !e.dtype.Valid {
			return nil, fmt.Errorf("array without data type")
		}
		dtype, err := data.ParseDataType(e.dtype.String)
		if err != nil {
			return nil, err
		}
		tuples, err := parseShape(e.tuples)
		if err != nil {
			return nil, err
		}
		components, err := parseShape(e.components)
		if err != nil {
			return nil, err
		}
		n := product(tuples) * product(components)
		store := data.NewEmptyStore(dtype, n)
		if r.mode == ReadFull && e.payload != nil {
			if store, err = data.NewMemoryStoreFromBytes(dtype, n, e.payload); err != nil {
				return nil, err
			}
		}
		return data.NewArrayWithStore(e.name, tuples, components, store), nil

	case data.KindStringArray:
		tuples, err := parseShape(e.tuples)
		if err != nil {
			return nil, err
		}
		values := make([]string, product(tuples))
		if r.mode == ReadFull && e.payload != nil {
			if err := json.Unmarshal(e.payload, &values); err != nil {
				return nil, fmt.Errorf("decode strings: %w", err)
			}
		}
		return data.NewStringArray(e.name, values), nil
	}
	return nil, fmt.Errorf("unsupported object kind %s", kind)
}

func parseShape(s sql.NullString) ([]int, error) {
	if !s.Valid {
		return nil, fmt.Errorf("missing shape")
	}
	var shape []int
	if err := json.Unmarshal([]byte(s.String), &shape); err != nil {
		return nil, fmt.Errorf("decode shape %q: %w", s.String, err)
	}
	return shape, nil
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
