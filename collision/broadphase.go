package collision

// broadphaseEpsilon expands query bounds slightly so touching bodies are
// still paired.
const broadphaseEpsilon float32 = 0.5

// broadphase enumerates candidate pairs: movable-vs-movable through the
// dynamic hash, movable-vs-static through the coarse region cache with a
// direct static-hash fallback. Pairs are canonicalized to dedupe and layer
// masks are filtered four lanes at a time.
func (e *Engine) broadphase() {
	e.pairs = e.pairs[:0]
	for k := range e.pairSet {
		delete(e.pairSet, k)
	}

	e.store.RLock()
	defer e.store.RUnlock()

	for _, aIdx := range e.movableActive {
		a := e.store.Hot(int(aIdx))
		bounds := a.CachedAABB.Expand(broadphaseEpsilon)

		// Movable vs movable.
		e.queryBuf = e.dynamicHash.QueryRegion(bounds, e.queryBuf[:0])
		e.collectPairs(aIdx, a.CollidesWith, a.Layers, e.queryBuf)

		// Movable vs static, through the region cache for the body's
		// coarse cell. A missing or invalidated entry falls back to a
		// direct static hash query on the body's own bounds.
		key := coarseKey{a.CoarseX, a.CoarseY}
		if entry, ok := e.regionCache[key]; ok && entry.valid {
			e.collectPairs(aIdx, a.CollidesWith, a.Layers, entry.statics)
		} else {
			e.queryBuf = e.staticHash.QueryRegion(bounds, e.queryBuf[:0])
			e.collectPairs(aIdx, a.CollidesWith, a.Layers, e.queryBuf)
		}
	}
}

// collectPairs filters candidates by layer mask and emits canonical pairs.
// The mask test is symmetric: a must collide with b's layers and b with a's.
func (e *Engine) collectPairs(aIdx int32, aCollidesWith, aLayers uint32, candidates []int32) {
	n := e.store.Len()

	// Gather candidate layer masks for the lane filter.
	e.maskBuf = e.maskBuf[:0]
	for _, c := range candidates {
		if int(c) >= n {
			e.maskBuf = append(e.maskBuf, 0)
			continue
		}
		e.maskBuf = append(e.maskBuf, e.store.Hot(int(c)).Layers)
	}
	e.filteredBuf = filterByMask(e.filteredBuf[:0], candidates, e.maskBuf, aCollidesWith)

	for _, bIdx := range e.filteredBuf {
		if bIdx == aIdx {
			continue
		}
		b := e.store.Hot(int(bIdx))
		if !b.Active || b.CollidesWith&aLayers == 0 {
			continue
		}
		p := makePair(aIdx, bIdx)
		if _, dup := e.pairSet[p]; dup {
			continue
		}
		e.pairSet[p] = struct{}{}
		e.pairs = append(e.pairs, p)
	}
}
