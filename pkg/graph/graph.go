// Package graph provides the in-memory traversal model for a workflow
// definition: successor and predecessor lookup by port, entry points, and
// structural validation (dangling connections, cycles).
package graph

import (
	"errors"
	"fmt"

	"github.com/flowgrid/flowgrid/pkg/models"
)

var (
	// ErrCycle indicates the connection graph contains a cycle. Iteration is
	// only supported through loop nodes, which iterate internally; plain
	// connections must form a DAG.
	ErrCycle = errors.New("workflow graph contains a cycle")

	// ErrUnknownNode indicates a connection references a node id that is not
	// part of the workflow.
	ErrUnknownNode = errors.New("connection references unknown node")

	// ErrNoTriggers indicates the workflow declares no trigger entry points.
	ErrNoTriggers = errors.New("workflow has no trigger nodes")
)

// Edge is one resolved connection between two node ports.
type Edge struct {
	From     string
	FromPort string
	To       string
	ToPort   string
}

// Graph is the traversal view over an immutable workflow definition.
type Graph struct {
	workflow *models.Workflow
	nodes    map[string]*models.Node
	outgoing map[string][]Edge // keyed by source node id
	incoming map[string][]Edge // keyed by target node id
	order    []string          // topological order of node ids
}

// New builds and validates a graph from a workflow definition.
func New(workflow *models.Workflow) (*Graph, error) {
	g := &Graph{
		workflow: workflow,
		nodes:    make(map[string]*models.Node, len(workflow.Nodes)),
		outgoing: make(map[string][]Edge),
		incoming: make(map[string][]Edge),
	}

	for _, node := range workflow.Nodes {
		if _, dup := g.nodes[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}

		g.nodes[node.ID] = node
	}

	for _, conn := range workflow.Connections {
		edge, err := g.resolveEdge(conn)
		if err != nil {
			return nil, err
		}

		g.outgoing[edge.From] = append(g.outgoing[edge.From], edge)
		g.incoming[edge.To] = append(g.incoming[edge.To], edge)
	}

	if len(workflow.Triggers) == 0 {
		return nil, ErrNoTriggers
	}

	for _, id := range workflow.Triggers {
		if _, ok := g.nodes[id]; !ok {
			return nil, fmt.Errorf("%w: trigger %q", ErrUnknownNode, id)
		}
	}

	order, err := g.topologicalOrder()
	if err != nil {
		return nil, err
	}

	g.order = order

	return g, nil
}

func (g *Graph) resolveEdge(conn *models.Connection) (Edge, error) {
	from, fromPort, ok := models.ParsePortID(conn.SourcePort)
	if !ok {
		// A bare node id means the default output port.
		from, fromPort = conn.SourcePort, models.DefaultPort
	}

	to, toPort, ok := models.ParsePortID(conn.TargetPort)
	if !ok {
		to, toPort = conn.TargetPort, models.DefaultPort
	}

	if _, exists := g.nodes[from]; !exists {
		return Edge{}, fmt.Errorf("%w: %q", ErrUnknownNode, from)
	}

	if _, exists := g.nodes[to]; !exists {
		return Edge{}, fmt.Errorf("%w: %q", ErrUnknownNode, to)
	}

	return Edge{From: from, FromPort: fromPort, To: to, ToPort: toPort}, nil
}

// topologicalOrder runs Kahn's algorithm over the node ids, preserving the
// workflow's declared node order for determinism. A leftover node means a cycle.
func (g *Graph) topologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.incoming[id])
	}

	var queue []string

	for _, node := range g.workflow.Nodes {
		if indegree[node.ID] == 0 {
			queue = append(queue, node.ID)
		}
	}

	order := make([]string, 0, len(g.nodes))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, edge := range g.outgoing[id] {
			indegree[edge.To]--
			if indegree[edge.To] == 0 {
				queue = append(queue, edge.To)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCycle
	}

	return order, nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *models.Node {
	return g.nodes[id]
}

// Workflow returns the underlying definition.
func (g *Graph) Workflow() *models.Workflow {
	return g.workflow
}

// Successors returns the outgoing edges from the given node's output port.
func (g *Graph) Successors(nodeID, port string) []Edge {
	var edges []Edge

	for _, edge := range g.outgoing[nodeID] {
		if edge.FromPort == port {
			edges = append(edges, edge)
		}
	}

	return edges
}

// Outgoing returns every outgoing edge from the given node.
func (g *Graph) Outgoing(nodeID string) []Edge {
	return g.outgoing[nodeID]
}

// Incoming returns every incoming edge into the given node.
func (g *Graph) Incoming(nodeID string) []Edge {
	return g.incoming[nodeID]
}

// Order returns the node ids in topological order.
func (g *Graph) Order() []string {
	return g.order
}

// EntryPoints returns the trigger nodes marking execution entry, filtered to
// the given trigger type when non-empty.
func (g *Graph) EntryPoints(triggerType models.TriggerType) []*models.Node {
	var nodes []*models.Node

	for _, id := range g.workflow.Triggers {
		node := g.nodes[id]
		if node == nil || node.Type != models.NodeTypeTrigger {
			continue
		}

		if triggerType != "" && node.Subtype != string(triggerType) {
			continue
		}

		nodes = append(nodes, node)
	}

	return nodes
}
