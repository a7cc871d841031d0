package canon

// unionFind is a disjoint-set forest over string ids.
type unionFind struct {
	parent map[string]string
	order  []string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
		u.order = append(u.order, id)
	}
}

func (u *unionFind) find(id string) string {
	u.add(id)
	for u.parent[id] != id {
		// path halving
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// classes groups every id by root, preserving insertion order inside each
// class and ordering classes by their first member.
func (u *unionFind) classes() [][]string {
	index := make(map[string]int)
	var out [][]string
	for _, id := range u.order {
		root := u.find(id)
		i, ok := index[root]
		if !ok {
			i = len(out)
			index[root] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], id)
	}
	return out
}
