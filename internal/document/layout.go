package document

// Horizontal spacing between consecutive nodes on the grid.
const GridStep = 260

// AppendOffset is the gap left between an existing graph and nodes appended to it.
const AppendOffset = 400

// GridLayout places node i at (i*GridStep, 0).
func GridLayout(nodes []Node) {
	for i := range nodes {
		nodes[i].Position = Position{X: float64(i * GridStep), Y: 0}
	}
}

// AppendLayout restores the positions of nodes that already existed in
// base and lays the new nodes out on the grid, starting AppendOffset to
// the right of base's rightmost node.
func AppendLayout(base *WorkflowData, nodes []Node) {
	if base == nil || len(base.Nodes) == 0 {
		return
	}
	prev := make(map[string]Position, len(base.Nodes))
	maxX := base.Nodes[0].Position.X
	for _, n := range base.Nodes {
		prev[n.ID] = n.Position
		if n.Position.X > maxX {
			maxX = n.Position.X
		}
	}

	next := maxX + AppendOffset
	for i := range nodes {
		if p, ok := prev[nodes[i].ID]; ok {
			nodes[i].Position = p
			continue
		}
		nodes[i].Position = Position{X: next, Y: 0}
		next += GridStep
	}
}
