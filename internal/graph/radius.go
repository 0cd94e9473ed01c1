package graph

// SystemsWithinRadius returns all systems reachable from origin within maxJumps
// stargate hops, mapped to their distance in jumps. Bridges are ignored.
func (u *Universe) SystemsWithinRadius(origin string, maxJumps int) map[string]int {
	return u.SystemsWithinRadiusMinSecurity(origin, maxJumps, 0)
}

// SystemsWithinRadiusMinSecurity returns systems reachable within maxJumps where
// every system on the path has security >= minSecurity. Use minSecurity <= 0 for no filter.
// An unknown origin yields an empty map.
func (u *Universe) SystemsWithinRadiusMinSecurity(origin string, maxJumps int, minSecurity float64) map[string]int {
	result := make(map[string]int)
	if _, ok := u.systems[origin]; !ok {
		return result
	}
	result[origin] = 0

	queue := []string{origin}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		dist := result[current]
		if dist >= maxJumps {
			continue
		}
		for _, neighbor := range u.systems[current].Gates {
			if minSecurity > 0 && u.systems[neighbor].Security < minSecurity {
				continue
			}
			if _, visited := result[neighbor]; !visited {
				result[neighbor] = dist + 1
				queue = append(queue, neighbor)
			}
		}
	}
	return result
}

// ShortestPath returns the shortest stargate jump count between origin and dest.
// All edges have unit weight, so BFS is optimal. Returns -1 if no path exists.
func (u *Universe) ShortestPath(origin, dest string) int {
	if _, ok := u.systems[origin]; !ok {
		return -1
	}
	if _, ok := u.systems[dest]; !ok {
		return -1
	}
	if origin == dest {
		return 0
	}

	dist := map[string]int{origin: 0}
	queue := []string{origin}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range u.systems[current].Gates {
			if _, visited := dist[neighbor]; visited {
				continue
			}
			nd := dist[current] + 1
			if neighbor == dest {
				return nd
			}
			dist[neighbor] = nd
			queue = append(queue, neighbor)
		}
	}
	return -1
}

// RegionsInSet returns the unique region names for a set of systems.
func (u *Universe) RegionsInSet(systems map[string]int) map[string]bool {
	regions := make(map[string]bool)
	for name := range systems {
		if s, ok := u.systems[name]; ok {
			regions[s.Region] = true
		}
	}
	return regions
}
