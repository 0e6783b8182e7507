package trajectory

// IDMap tracks which trajectory ids have been merged into which. It is a
// directed union-find: the target of a merge always survives as the root, so
// Find resolves any id to the trajectory that currently owns its samples.
type IDMap struct {
	parent map[int]int
}

// NewIDMap returns an empty remap in which every id is its own root.
func NewIDMap() *IDMap {
	return &IDMap{parent: make(map[int]int)}
}

// Find returns the live representative of id, compressing the path it walked.
func (m *IDMap) Find(id int) int {
	root := id
	for {
		p, ok := m.parent[root]
		if !ok {
			break
		}
		root = p
	}

	for id != root {
		next := m.parent[id]
		m.parent[id] = root
		id = next
	}
	return root
}

// Merged reports whether id has been merged into another trajectory.
func (m *IDMap) Merged(id int) bool {
	_, ok := m.parent[id]
	return ok
}

// Union merges the set containing src into the set containing dst and returns
// the surviving root. It returns false when both already share a root.
func (m *IDMap) Union(src, dst int) (int, bool) {
	rs, rd := m.Find(src), m.Find(dst)
	if rs == rd {
		return rd, false
	}
	m.parent[rs] = rd
	return rd, true
}

// Resolve maps every id in ids to its root.
func (m *IDMap) Resolve(ids []int) map[int]int {
	out := make(map[int]int, len(ids))
	for _, id := range ids {
		out[id] = m.Find(id)
	}
	return out
}
