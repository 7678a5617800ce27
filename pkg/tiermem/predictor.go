// Copyright 2021 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tiermem

import "sync"

// histEntry is one slot of a page's sliding sample history.
type histEntry struct {
	used bool
	page *Page
	va   uint64
	cyc  uint64
	ip   uint64
}

// neighbor is one of a page's MaxNeighbors closest-observed pages, aged
// on every new sample so that stale associations fade out even without
// being displaced.
type neighbor struct {
	page     *Page
	distance float64
	timeDiff uint64 // cyc delta observed between this page and its neighbor
}

// predState is the per-page bookkeeping the predictor keeps alongside
// the page table entry: sample history plus the neighbor set.
type predState struct {
	mu        sync.Mutex
	history   [HistorySize]histEntry
	next      int // ring write cursor
	neighbors [MaxNeighbors]neighbor
	botDist   float64
	avgDist   float64
}

// NeighborPredictor maintains per-page sample history and a weighted
// distance metric between pages, used to predict which pages are likely
// to be accessed next so the migration worker can move them ahead of
// time. Distance weights must be nonnegative and sum to 1.
type NeighborPredictor struct {
	mu     sync.Mutex
	states map[*Page]*predState
	table  *pageTable

	weightVA  float64
	weightCyc float64
	weightIP  float64

	useDFS bool

	migrationLatency func() uint64 // estimated cycles a migration takes
	throttled        func() bool   // backpressure gate from the ingestor
}

// NewNeighborPredictor constructs a predictor with the prototype's
// default equal weights. Use SetWeights to override them. table is used
// to resolve a history entry's raw sample address back to the page
// descriptor it belongs to, since the neighbor set is a set of pages,
// not raw addresses.
func NewNeighborPredictor(table *pageTable, migrationLatency func() uint64, throttled func() bool) *NeighborPredictor {
	return &NeighborPredictor{
		states:           make(map[*Page]*predState),
		table:            table,
		weightVA:         DefaultWeightVA,
		weightCyc:        DefaultWeightCyc,
		weightIP:         DefaultWeightIP,
		migrationLatency: migrationLatency,
		throttled:        throttled,
	}
}

// SetWeights overrides the default distance weights. Returns an error if
// they are negative or do not sum to 1 (within floating point epsilon).
func (np *NeighborPredictor) SetWeights(va, cyc, ip float64) error {
	if va < 0 || cyc < 0 || ip < 0 {
		return errNegativeWeight
	}
	sum := va + cyc + ip
	if sum < 0.999 || sum > 1.001 {
		return errWeightsDontSumToOne
	}
	np.mu.Lock()
	defer np.mu.Unlock()
	np.weightVA, np.weightCyc, np.weightIP = va, cyc, ip
	return nil
}

// SetLookahead selects BFS (the default) or DFS traversal for
// PredictNeighbors.
func (np *NeighborPredictor) SetLookahead(dfs bool) {
	np.mu.Lock()
	defer np.mu.Unlock()
	np.useDFS = dfs
}

func (np *NeighborPredictor) stateFor(p *Page) *predState {
	np.mu.Lock()
	defer np.mu.Unlock()
	st, ok := np.states[p]
	if !ok {
		st = &predState{}
		np.states[p] = st
	}
	return st
}

// Observe folds one sample into p's history, updating its neighbor set
// against every other page already in the history ring before the
// oldest entry is overwritten. Grounded on algorithm.c's
// algo_add_page/update_neighbors.
func (np *NeighborPredictor) Observe(p *Page, s sample) {
	st := np.stateFor(p)
	entryPage, _ := np.table.find(s.addr)

	st.mu.Lock()
	defer st.mu.Unlock()

	np.updateNeighborsLocked(st, s)

	oldest := st.next
	st.history[oldest] = histEntry{used: true, page: entryPage, va: s.addr, cyc: s.cyc, ip: s.ip}
	st.next = (st.next + 1) % HistorySize
}

func (np *NeighborPredictor) calcDistance(e histEntry, s sample) float64 {
	dva := absDiffU64(e.va, s.addr)
	dcyc := absDiffU64(e.cyc, s.cyc)
	dip := absDiffU64(e.ip, s.ip)
	return np.weightVA*float64(dva) + np.weightCyc*float64(dcyc) + np.weightIP*float64(dip)
}

// updateNeighborsLocked ages existing neighbors by 1.01x, then for every
// page still present in the history ring considers whether it belongs
// in the neighbor set: an empty slot is filled outright, otherwise the
// furthest current neighbor is evicted if the candidate is closer.
// Grounded on algorithm.c's update_neighbors.
func (np *NeighborPredictor) updateNeighborsLocked(st *predState, s sample) {
	for i := range st.neighbors {
		if st.neighbors[i].page != nil {
			st.neighbors[i].distance *= 1.01
		}
	}

	for _, e := range st.history {
		if !e.used || e.page == nil {
			continue
		}
		d := np.calcDistance(e, s)
		np.updateBot(st, d)
		np.updateAvg(st, d)

		timeDiff := absDiffU64(e.cyc, s.cyc)
		np.considerNeighborLocked(st, e.page, d, timeDiff)
	}
}

// considerNeighborLocked inserts candidate into st.neighbors if there is
// an empty slot, or replaces the current furthest neighbor if candidate
// is closer than it. Caller holds st.mu.
func (np *NeighborPredictor) considerNeighborLocked(st *predState, candidate *Page, distance float64, timeDiff uint64) {
	emptySlot := -1
	furthestSlot := -1
	furthestDistance := -1.0
	for i := range st.neighbors {
		if st.neighbors[i].page == candidate {
			st.neighbors[i].distance = distance
			st.neighbors[i].timeDiff = timeDiff
			return
		}
		if st.neighbors[i].page == nil {
			if emptySlot == -1 {
				emptySlot = i
			}
			continue
		}
		if st.neighbors[i].distance > furthestDistance {
			furthestDistance = st.neighbors[i].distance
			furthestSlot = i
		}
	}
	if emptySlot != -1 {
		st.neighbors[emptySlot] = neighbor{page: candidate, distance: distance, timeDiff: timeDiff}
		return
	}
	if furthestSlot != -1 && distance < furthestDistance {
		st.neighbors[furthestSlot] = neighbor{page: candidate, distance: distance, timeDiff: timeDiff}
	}
}

// updateBot adjusts the predictor's "bottom distance" threshold: a close
// observation (d below the current threshold) pulls it down fast, a far
// one relaxes it back up slowly, per algorithm.c's asymmetric EMA. One
// update never moves the threshold above 10x or below 1/10x its previous
// value.
func (np *NeighborPredictor) updateBot(st *predState, d float64) {
	if st.botDist == 0 {
		st.botDist = d
		return
	}
	prev := st.botDist
	if d < st.botDist {
		st.botDist = st.botDist*(1-decBotDown) + d*decBotDown
	} else {
		st.botDist = st.botDist*(1-decBotUp) + d*decBotUp
	}
	if st.botDist > 10*prev {
		st.botDist = 10 * prev
	} else if st.botDist < prev/10 {
		st.botDist = prev / 10
	}
}

func (np *NeighborPredictor) updateAvg(st *predState, d float64) {
	if st.avgDist == 0 {
		st.avgDist = d
		return
	}
	st.avgDist = st.avgDist*(1-decAvgDist) + d*decAvgDist
}

func absDiffU64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// bfsNode is one entry in the lookahead queue.
type bfsNode struct {
	page     *Page
	depth    int
	timeDiff uint64
}

// PredictNeighbors returns pages predicted to be accessed soon after p,
// suppressed while the ingestor is throttled (mirroring algorithm.c's
// algo_predict_pages, which backs off prediction under PEBS backpressure
// rather than adding to it) and filtered on each candidate's accumulated
// time_diff exceeding the estimated cost of migrating it.
func (np *NeighborPredictor) PredictNeighbors(p *Page) []*Page {
	if np.throttled != nil && np.throttled() {
		return nil
	}
	if np.useDFS {
		return np.predictDFS(p)
	}
	return np.predictBFS(p)
}

func (np *NeighborPredictor) predictBFS(p *Page) []*Page {
	maxPreds := MaxPredDepth * MaxNeighbors
	budget := np.migrationLatency()

	visited := map[*Page]bool{p: true}
	queue := []bfsNode{{page: p, depth: 0}}
	var preds []*Page

	for len(queue) > 0 && len(queue) <= BFSQueueMax && len(preds) < maxPreds {
		n := queue[0]
		queue = queue[1:]
		if n.depth >= MaxPredDepth {
			continue
		}
		st := np.stateFor(n.page)
		st.mu.Lock()
		threshold := st.botDist
		for _, nb := range st.neighbors {
			if nb.page == nil || visited[nb.page] {
				continue
			}
			visited[nb.page] = true
			cumulative := n.timeDiff + nb.timeDiff
			if nb.distance < threshold && cumulative > budget {
				preds = append(preds, nb.page)
			}
			if len(queue) < BFSQueueMax {
				queue = append(queue, bfsNode{page: nb.page, depth: n.depth + 1, timeDiff: cumulative})
			}
		}
		st.mu.Unlock()
	}
	return preds
}

// predictDFS walks the single closest-neighbor chain from p, the
// alternative traversal algorithm.c offers for lower-latency,
// lower-recall prediction.
func (np *NeighborPredictor) predictDFS(p *Page) []*Page {
	budget := np.migrationLatency()
	var preds []*Page
	cur := p
	var cumulative uint64
	visited := map[*Page]bool{p: true}

	for depth := 0; depth < MaxPredDepth; depth++ {
		st := np.stateFor(cur)
		st.mu.Lock()
		var closest *neighbor
		for i := range st.neighbors {
			nb := &st.neighbors[i]
			if nb.page == nil || visited[nb.page] {
				continue
			}
			if closest == nil || nb.distance < closest.distance {
				closest = nb
			}
		}
		threshold := st.botDist
		st.mu.Unlock()

		if closest == nil {
			break
		}
		visited[closest.page] = true
		cumulative += closest.timeDiff
		if closest.distance < threshold && cumulative > budget {
			preds = append(preds, closest.page)
		}
		cur = closest.page
	}
	return preds
}
