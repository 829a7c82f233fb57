// Package workflow loads workflow definitions from the file system. The
// engine treats definitions as read-only; this repository is how the server
// and the one-shot runner get them.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flowgrid/flowgrid/pkg/models"
)

// ErrWorkflowNotFound is returned when no definition file matches the id.
var ErrWorkflowNotFound = errors.New("workflow not found")

// FileRepository reads workflow definitions from a directory of JSON files,
// one workflow per file, named "{id}.json".
type FileRepository struct {
	root string
}

func NewFileRepository(root string) *FileRepository {
	return &FileRepository{root: strings.Replace(root, "file://", "", 1)}
}

// List loads every definition in the directory, sorted by id.
func (r *FileRepository) List() ([]*models.Workflow, error) {
	entries, err := fs.Glob(os.DirFS(r.root), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		workflow, err := r.ByID(strings.TrimSuffix(entry, ".json"))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].ID < workflows[j].ID
	})

	return workflows, nil
}

// ByID loads one definition. The file's id field wins over the file name.
func (r *FileRepository) ByID(id string) (*models.Workflow, error) {
	data, err := os.ReadFile(filepath.Join(r.root, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	return Parse(data)
}

// Parse decodes and structurally checks a workflow definition.
func Parse(data []byte) (*models.Workflow, error) {
	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("invalid workflow definition: %w", err)
	}

	if err := validate(&workflow); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// validate checks the structural invariants a definition must hold before it
// reaches the graph builder: unique node ids, resolvable trigger entry
// points, connections referencing declared nodes.
func validate(workflow *models.Workflow) error {
	if workflow.ID == "" {
		return errors.New("workflow id is required")
	}

	if len(workflow.Nodes) == 0 {
		return fmt.Errorf("workflow %s has no nodes", workflow.ID)
	}

	nodes := make(map[string]*models.Node, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if node.ID == "" {
			return fmt.Errorf("workflow %s has a node without an id", workflow.ID)
		}

		if _, dup := nodes[node.ID]; dup {
			return fmt.Errorf("workflow %s declares node %s twice", workflow.ID, node.ID)
		}

		nodes[node.ID] = node
	}

	if len(workflow.Triggers) == 0 {
		return fmt.Errorf("workflow %s has no trigger entry points", workflow.ID)
	}

	for _, id := range workflow.Triggers {
		node, ok := nodes[id]
		if !ok {
			return fmt.Errorf("workflow %s: trigger entry %s is not a node", workflow.ID, id)
		}

		if node.Type != models.NodeTypeTrigger {
			return fmt.Errorf("workflow %s: entry %s is not a trigger node", workflow.ID, id)
		}
	}

	for _, conn := range workflow.Connections {
		for _, port := range []string{conn.SourcePort, conn.TargetPort} {
			nodeID, _, ok := models.ParsePortID(port)
			if !ok {
				return fmt.Errorf("workflow %s: malformed port id %q", workflow.ID, port)
			}

			if _, ok := nodes[nodeID]; !ok {
				return fmt.Errorf("workflow %s: connection references unknown node %s", workflow.ID, nodeID)
			}
		}
	}

	return nil
}
