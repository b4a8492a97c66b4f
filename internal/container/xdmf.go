package container

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/datapipe/internal/data"
)

// XDMFPath returns the companion description path for a container.
func XDMFPath(containerPath string) string {
	return containerPath + ".xdmf"
}

type xdmfDoc struct {
	XMLName xml.Name   `xml:"Xdmf"`
	Version string     `xml:"Version,attr"`
	Domain  xdmfDomain `xml:"Domain"`
}

type xdmfDomain struct {
	Grids []xdmfGrid `xml:"Grid"`
}

type xdmfGrid struct {
	Name       string          `xml:"Name,attr"`
	GridType   string          `xml:"GridType,attr"`
	Topology   xdmfTopology    `xml:"Topology"`
	Geometry   xdmfGeometry    `xml:"Geometry"`
	Attributes []xdmfAttribute `xml:"Attribute"`
}

type xdmfTopology struct {
	TopologyType string `xml:"TopologyType,attr"`
	Dimensions   string `xml:"Dimensions,attr"`
}

type xdmfGeometry struct {
	Type  string         `xml:"Type,attr"`
	Items []xdmfDataItem `xml:"DataItem"`
}

type xdmfAttribute struct {
	Name          string       `xml:"Name,attr"`
	AttributeType string       `xml:"AttributeType,attr"`
	Center        string       `xml:"Center,attr"`
	Item          xdmfDataItem `xml:"DataItem"`
}

type xdmfDataItem struct {
	Format     string `xml:"Format,attr"`
	Dimensions string `xml:"Dimensions,attr"`
	NumberType string `xml:"NumberType,attr,omitempty"`
	Precision  int    `xml:"Precision,attr,omitempty"`
	Value      string `xml:",chardata"`
}

// WriteXDMF regenerates the companion description of ds next to the
// container at containerPath. Without image geometries any stale companion
// file is removed.
func WriteXDMF(containerPath string, ds *data.Structure) error {
	doc := buildXDMF(filepath.Base(containerPath), ds)
	out := XDMFPath(containerPath)
	if len(doc.Domain.Grids) == 0 {
		if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove xdmf: %w", err)
		}
		return nil
	}
	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode xdmf: %w", err)
	}
	content := xml.Header + string(b) + "\n"
	if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write xdmf: %w", err)
	}
	return nil
}

// buildXDMF describes every image geometry of ds. Cell arrays are the
// arrays inside the geometry's attribute matrices whose tuple count equals
// the cell count; their data items point into the container by path.
func buildXDMF(containerName string, ds *data.Structure) xdmfDoc {
	doc := xdmfDoc{Version: "2.0"}
	seen := map[data.ID]bool{}
	ds.Walk(func(p data.Path, obj data.Object) bool {
		g, ok := obj.(*data.Geometry)
		if !ok {
			return true
		}
		if seen[g.ID()] || g.Type != data.GeometryImage {
			return false
		}
		seen[g.ID()] = true
		doc.Domain.Grids = append(doc.Domain.Grids, imageGrid(containerName, ds, p, g))
		return false
	})
	return doc
}

func imageGrid(containerName string, ds *data.Structure, p data.Path, g *data.Geometry) xdmfGrid {
	d := g.Dimensions
	grid := xdmfGrid{
		Name:     g.Name(),
		GridType: "Uniform",
		Topology: xdmfTopology{
			TopologyType: "3DCoRectMesh",
			// Points, not cells, in z y x order.
			Dimensions: fmt.Sprintf("%d %d %d", d[2]+1, d[1]+1, d[0]+1),
		},
		Geometry: xdmfGeometry{
			Type: "ORIGIN_DXDYDZ",
			Items: []xdmfDataItem{
				vector3(g.Origin),
				vector3(g.Spacing),
			},
		},
	}

	cells := g.NumCells()
	for _, amName := range g.Children().Names() {
		am, err := ds.AttributeMatrix(p.Child(amName))
		if err != nil || am.NumTuples() != cells {
			continue
		}
		for _, name := range am.Children().Names() {
			ap := p.Child(amName).Child(name)
			arr, err := ds.Array(ap)
			if err != nil {
				continue
			}
			grid.Attributes = append(grid.Attributes, cellAttribute(containerName, ap, d, arr))
		}
	}
	return grid
}

// vector3 writes v in z y x order.
func vector3(v [3]float64) xdmfDataItem {
	return xdmfDataItem{
		Format:     "XML",
		Dimensions: "3",
		NumberType: "Float",
		Precision:  8,
		Value:      fmt.Sprintf("%g %g %g", v[2], v[1], v[0]),
	}
}

func cellAttribute(containerName string, p data.Path, d [3]int, arr *data.Array) xdmfAttribute {
	typ := "Scalar"
	dims := fmt.Sprintf("%d %d %d", d[2], d[1], d[0])
	if n := arr.NumComponents(); n > 1 {
		typ = "Vector"
		dims = fmt.Sprintf("%s %d", dims, n)
	}
	numberType, precision := xdmfNumber(arr.DataType())
	return xdmfAttribute{
		Name:          arr.Name(),
		AttributeType: typ,
		Center:        "Cell",
		Item: xdmfDataItem{
			Format:     "Binary",
			Dimensions: dims,
			NumberType: numberType,
			Precision:  precision,
			Value:      containerName + ":/" + strings.Join([]string{RootGroup, p.String()}, "/"),
		},
	}
}

func xdmfNumber(t data.DataType) (string, int) {
	switch t {
	case data.Int8:
		return "Char", 1
	case data.UInt8, data.Bool:
		return "UChar", 1
	case data.Int16, data.Int32, data.Int64:
		return "Int", t.Size()
	case data.UInt16, data.UInt32, data.UInt64:
		return "UInt", t.Size()
	default:
		return "Float", t.Size()
	}
}
