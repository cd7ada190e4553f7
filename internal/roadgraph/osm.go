package roadgraph

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"

	"transit-isochrone/internal/geo"
)

// Highway values that are never walkable.
var nonWalkable = map[string]bool{
	"motorway":      true,
	"motorway_link": true,
	"construction":  true,
	"proposed":      true,
	"raceway":       true,
	"bus_guideway":  true,
}

func walkable(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if hw == "" || nonWalkable[hw] {
		return false
	}
	switch tags.Find("foot") {
	case "no", "private":
		return false
	case "yes", "designated", "permissive":
		return true
	}
	switch tags.Find("access") {
	case "no", "private":
		return false
	}
	return true
}

// LoadOSM builds a walking graph from OSM XML. Only nodes referenced by
// walkable ways become graph nodes; consecutive way nodes become edges.
func LoadOSM(ctx context.Context, r io.Reader, proj geo.Projection, walkingSpeed float64) (*Graph, error) {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()

	coords := make(map[osm.NodeID]geo.Point)
	var ways [][]osm.NodeID
	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			coords[o.ID] = proj.Project(o.Lat, o.Lon)
		case *osm.Way:
			if !walkable(o.Tags) || len(o.Nodes) < 2 {
				continue
			}
			ids := make([]osm.NodeID, len(o.Nodes))
			for i, wn := range o.Nodes {
				ids[i] = wn.ID
			}
			ways = append(ways, ids)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan osm: %w", err)
	}

	b := NewBuilder(walkingSpeed)
	missing := 0
	for _, ids := range ways {
		var prev osm.NodeID
		havePrev := false
		for _, id := range ids {
			p, ok := coords[id]
			if !ok {
				// Extract clipped at the bbox edge; break the way here.
				missing++
				havePrev = false
				continue
			}
			b.AddNode(int64(id), p)
			if havePrev {
				if err := b.AddEdge(int64(prev), int64(id)); err != nil {
					return nil, err
				}
			}
			prev, havePrev = id, true
		}
	}
	if missing > 0 {
		log.Printf("osm: %d way node refs without coordinates skipped", missing)
	}
	g, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build road graph: %w", err)
	}
	log.Printf("osm: road graph with %d nodes, %d edges from %d walkable ways", g.NodeCount(), g.EdgeCount(), len(ways))
	return g, nil
}
