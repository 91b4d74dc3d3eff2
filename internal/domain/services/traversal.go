package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/relgraph/internal/domain/entities"
	"github.com/ersonp/relgraph/internal/domain/ports"
	"go.uber.org/zap"
)

// Traversal bounds used when the caller does not configure them.
const (
	DefaultTraversalDepth = 5
	HardMaxTraversalDepth = 25
	DefaultMaxNodes       = 10000
	DefaultMaxPaths       = 16
)

// TraversalLimits bounds graph walks.
type TraversalLimits struct {
	DefaultDepth int
	HardMaxDepth int
	MaxNodes     int
	MaxPaths     int
}

func (l TraversalLimits) withDefaults() TraversalLimits {
	if l.HardMaxDepth <= 0 {
		l.HardMaxDepth = HardMaxTraversalDepth
	}
	if l.DefaultDepth <= 0 || l.DefaultDepth > l.HardMaxDepth {
		l.DefaultDepth = min(DefaultTraversalDepth, l.HardMaxDepth)
	}
	if l.MaxNodes <= 0 {
		l.MaxNodes = DefaultMaxNodes
	}
	if l.MaxPaths <= 0 {
		l.MaxPaths = DefaultMaxPaths
	}
	return l
}

// ChainOptions controls a path search between two entities.
type ChainOptions struct {
	MaxDepth int
	Types    []string
	MaxPaths int
}

// ExpandOptions controls an outward walk from one entity.
type ExpandOptions struct {
	MaxDepth int
	Types    []string
	MaxNodes int
}

// Path is a walk through the graph. Edges[i] joins Nodes[i] and Nodes[i+1].
type Path struct {
	Nodes []string                 `json:"nodes"`
	Edges []*entities.Relationship `json:"edges"`
}

// Hops returns the number of edges on the path.
func (p Path) Hops() int { return len(p.Edges) }

// String renders the path as "a -[type]-> b".
func (p Path) String() string {
	var b strings.Builder
	for i, node := range p.Nodes {
		if i > 0 {
			fmt.Fprintf(&b, " -[%s]-> ", p.Edges[i-1].RelationshipType)
		}
		b.WriteString(node)
	}
	return b.String()
}

// ChainResult holds the shortest paths found between two entities.
type ChainResult struct {
	Paths []Path `json:"paths"`
	// Depth is the hop count of the returned paths.
	Depth int `json:"depth"`
	// Truncated is set when paths were dropped by the path cap or the node budget.
	Truncated bool `json:"truncated"`
}

// ReachableNode is one entity reached by an expansion.
type ReachableNode struct {
	EntityID string `json:"entity_id"`
	Distance int    `json:"distance"`
	// Parent is the entity the node was first reached from.
	Parent string                 `json:"parent"`
	Via    *entities.Relationship `json:"via"`
}

// TreeNode is a node of the breadth-first tree built by an expansion.
type TreeNode struct {
	EntityID string                 `json:"entity_id"`
	Distance int                    `json:"distance"`
	Via      *entities.Relationship `json:"via,omitempty"`
	Children []*TreeNode            `json:"children,omitempty"`
}

// ExpandResult holds every entity reachable from a start entity.
type ExpandResult struct {
	Root      *TreeNode       `json:"root"`
	Nodes     []ReachableNode `json:"nodes"`
	Truncated bool            `json:"truncated"`
}

// TraversalService walks chains of currently valid relationships.
type TraversalService struct {
	reader   ports.GraphReader
	limits   TraversalLimits
	logger   *zap.Logger
	recorder ports.Recorder
	now      func() time.Time
}

// NewTraversalService creates a new TraversalService.
func NewTraversalService(
	reader ports.GraphReader,
	limits TraversalLimits,
	logger *zap.Logger,
	recorder ports.Recorder,
) *TraversalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &TraversalService{
		reader:   reader,
		limits:   limits.withDefaults(),
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// walker expands one breadth-first level at a time over currently valid
// edges, as they are at a fixed instant.
type walker struct {
	reader ports.GraphReader
	orgID  string
	types  []string
	at     time.Time
}

type step struct {
	from, to string
	edge     *entities.Relationship
}

// level returns every walkable step out of frontier, in edge order.
func (w *walker) level(ctx context.Context, frontier []string) ([]step, error) {
	edges, err := w.reader.FindEdges(ctx, w.orgID, ports.EdgeQuery{
		EntityIDs:  frontier,
		Types:      w.types,
		ActiveOnly: true,
		ValidAt:    &w.at,
	})
	if err != nil {
		return nil, fmt.Errorf("reading edges: %w", err)
	}

	adj := adjacency(edges)
	steps := make([]step, 0, len(edges))
	for _, node := range frontier {
		for _, edge := range adj[node] {
			if !edge.CurrentlyValid(w.at) {
				continue
			}
			if next, ok := edge.Neighbor(node); ok && next != node {
				steps = append(steps, step{from: node, to: next, edge: edge})
			}
		}
	}
	return steps, nil
}

func (s *TraversalService) depth(requested int) (int, error) {
	if requested <= 0 {
		return s.limits.DefaultDepth, nil
	}
	if requested > s.limits.HardMaxDepth {
		return 0, fmt.Errorf("%w: max_depth %d exceeds the limit of %d",
			entities.ErrDepthExceeded, requested, s.limits.HardMaxDepth)
	}
	return requested, nil
}

// Chain returns every shortest path from one entity to another, up to the
// path cap. No path yields an empty result.
func (s *TraversalService) Chain(ctx context.Context, orgID, fromID, toID string, opts ChainOptions) (*ChainResult, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	if fromID == "" || toID == "" {
		return nil, entities.Malformed("entity_id", "from and to are required")
	}
	maxDepth, err := s.depth(opts.MaxDepth)
	if err != nil {
		return nil, err
	}
	maxPaths := opts.MaxPaths
	if maxPaths <= 0 || maxPaths > s.limits.MaxPaths {
		maxPaths = s.limits.MaxPaths
	}

	result := &ChainResult{Paths: []Path{}}
	if fromID == toID {
		result.Paths = append(result.Paths, Path{Nodes: []string{fromID}, Edges: []*entities.Relationship{}})
		return result, nil
	}

	w := &walker{reader: s.reader, orgID: orgID, types: opts.Types, at: s.now().UTC()}
	visited := map[string]bool{fromID: true}
	// parents holds every step reaching a node from the previous level.
	parents := make(map[string][]step)
	frontier := []string{fromID}
	found := false

	for depth := 1; depth <= maxDepth && len(frontier) > 0 && !found; depth++ {
		steps, err := w.level(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, st := range steps {
			if visited[st.to] {
				continue
			}
			if _, seen := parents[st.to]; !seen {
				next = append(next, st.to)
			}
			parents[st.to] = append(parents[st.to], st)
		}
		for _, node := range next {
			visited[node] = true
		}
		if _, ok := parents[toID]; ok {
			found = true
			result.Depth = depth
		}
		if len(visited) > s.limits.MaxNodes {
			result.Truncated = true
			break
		}
		frontier = next
	}
	s.recorder.Traversal("chain", len(visited))

	if !found {
		return result, nil
	}

	var build func(node string, suffix []step)
	build = func(node string, suffix []step) {
		if node == fromID {
			result.Paths = append(result.Paths, pathOf(fromID, suffix))
			return
		}
		for _, st := range parents[node] {
			if len(result.Paths) >= maxPaths {
				result.Truncated = true
				return
			}
			build(st.from, append([]step{st}, suffix...))
		}
	}
	build(toID, nil)

	s.logger.Debug("chain resolved",
		zap.String("org", orgID),
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.Int("paths", len(result.Paths)),
		zap.Int("depth", result.Depth),
	)
	return result, nil
}

func pathOf(start string, steps []step) Path {
	p := Path{
		Nodes: make([]string, 0, len(steps)+1),
		Edges: make([]*entities.Relationship, 0, len(steps)),
	}
	p.Nodes = append(p.Nodes, start)
	for _, st := range steps {
		p.Nodes = append(p.Nodes, st.to)
		p.Edges = append(p.Edges, st.edge)
	}
	return p
}

// Expand returns every entity reachable from startID within the depth
// bound, each with its hop distance, plus the breadth-first tree.
func (s *TraversalService) Expand(ctx context.Context, orgID, startID string, opts ExpandOptions) (*ExpandResult, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, entities.Malformed("organization_id", "is required")
	}
	if startID == "" {
		return nil, entities.Malformed("entity_id", "is required")
	}
	maxDepth, err := s.depth(opts.MaxDepth)
	if err != nil {
		return nil, err
	}
	maxNodes := opts.MaxNodes
	if maxNodes <= 0 || maxNodes > s.limits.MaxNodes {
		maxNodes = s.limits.MaxNodes
	}

	w := &walker{reader: s.reader, orgID: orgID, types: opts.Types, at: s.now().UTC()}
	root := &TreeNode{EntityID: startID}
	result := &ExpandResult{Root: root, Nodes: []ReachableNode{}}
	tree := map[string]*TreeNode{startID: root}
	frontier := []string{startID}

walk:
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		steps, err := w.level(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, st := range steps {
			if _, seen := tree[st.to]; seen {
				continue
			}
			if len(result.Nodes) >= maxNodes {
				result.Truncated = true
				break walk
			}
			node := &TreeNode{EntityID: st.to, Distance: depth, Via: st.edge}
			parent := tree[st.from]
			parent.Children = append(parent.Children, node)
			tree[st.to] = node
			result.Nodes = append(result.Nodes, ReachableNode{
				EntityID: st.to,
				Distance: depth,
				Parent:   st.from,
				Via:      st.edge,
			})
			next = append(next, st.to)
		}
		frontier = next
	}
	s.recorder.Traversal("expand", len(result.Nodes))
	return result, nil
}
