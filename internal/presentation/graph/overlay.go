package graph

import (
	"strconv"

	"github.com/aretw0/chainflow/pkg/definition"
	"github.com/aretw0/chainflow/pkg/domain"
)

// FromSnapshot builds the overlay of a persisted run. Nodes before the cursor
// of a sequential or loop chain are visited; the node at the cursor is current
// while the run is suspended or failed. Nested chains are followed through the
// snapshot children, numbered in node order.
func FromSnapshot(def *definition.Definition, snap *domain.Snapshot) *GraphOverlay {
	o := &GraphOverlay{}
	if def == nil || snap == nil {
		return o
	}
	o.Failed = snap.Status == domain.StatusFinishedAbnormal
	overlayChain(o, def, snap, def.ID)
	return o
}

func overlayChain(o *GraphOverlay, def *definition.Definition, snap *domain.Snapshot, path string) {
	entry := path + "/__entry"
	if snap.Status == domain.StatusReady {
		return
	}
	o.VisitedNodes = append(o.VisitedNodes, entry)

	if snap.Status == domain.StatusFinishedNormal {
		visitAll(o, def, path)
		return
	}

	switch def.Kind {
	case definition.KindParallel, definition.KindRouter:
		o.CurrentNode = entry
		return
	}

	child := 0
	for i, n := range def.Nodes {
		nodePath := path + "/" + n.ID
		var nested *domain.Snapshot
		if n.Chain != nil {
			nested = snap.Children[strconv.Itoa(child)]
			child++
		}

		switch {
		case i < snap.Cursor || snap.Passes > 0:
			if n.Chain != nil {
				visitAll(o, n.Chain, nodePath)
			} else {
				o.VisitedNodes = append(o.VisitedNodes, nodePath)
			}
		case i == snap.Cursor:
			if nested != nil && n.Chain != nil {
				overlayChain(o, n.Chain, nested, nodePath)
				if o.CurrentNode == "" {
					o.CurrentNode = nodePath
				}
				continue
			}
			o.CurrentNode = nodePath
		}
	}
}

func visitAll(o *GraphOverlay, def *definition.Definition, path string) {
	o.VisitedNodes = append(o.VisitedNodes, path+"/__entry")
	for _, n := range def.Nodes {
		nodePath := path + "/" + n.ID
		if n.Chain != nil {
			visitAll(o, n.Chain, nodePath)
			continue
		}
		o.VisitedNodes = append(o.VisitedNodes, nodePath)
	}
	if def.Kind == definition.KindParallel {
		o.VisitedNodes = append(o.VisitedNodes, path+"/__join")
	}
	if def.Kind == definition.KindRouter {
		o.VisitedNodes = append(o.VisitedNodes, path+"/__route")
	}
}
