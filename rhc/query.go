package rhc

// QueryPredicate is a pure, side-effect-free predicate over a sample.
// Per spec section 4.4 it is invoked on invalid (key-only) samples just
// as it is on data samples; a predicate that inspects non-key fields
// must itself tolerate ValidData == false (Sample.Handle.HasData() ==
// false) rather than relying on the query condition to skip them.
type QueryPredicate func(s *Sample) bool

// QueryCondition pairs an RHC, a Mask and a QueryPredicate, the query
// condition of spec section 4.4: samples must match the mask and
// satisfy the predicate to be returned.
type QueryCondition struct {
	rhc       *RHC
	mask      Mask
	predicate QueryPredicate
}

// NewQueryCondition builds a QueryCondition over r.
func NewQueryCondition(r *RHC, mask Mask, pred QueryPredicate) *QueryCondition {
	return &QueryCondition{rhc: r, mask: mask, predicate: pred}
}

// QueryResult pairs a matched sample with its sample_rank, computed
// over the samples of its own instance that also satisfy this
// condition (not every sample of the instance), per spec section 4.4.
type QueryResult struct {
	Sample     *Sample
	SampleRank int
}

// Read evaluates the condition non-destructively.
func (q *QueryCondition) Read(maxN int) []QueryResult {
	return q.scan(maxN, false)
}

// Take evaluates the condition destructively, removing matched samples.
func (q *QueryCondition) Take(maxN int) []QueryResult {
	return q.scan(maxN, true)
}

func (q *QueryCondition) scan(maxN int, destructive bool) []QueryResult {
	r := q.rhc
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []QueryResult
	var hits []sampleHit
	for _, handle := range r.order {
		inst := r.byHandle[handle]
		var matches []int
		for idx, s := range inst.samples {
			if !q.mask.matchesSample(s, inst.state) {
				continue
			}
			if !q.predicate(s) {
				continue
			}
			matches = append(matches, idx)
		}
		for rank, idx := range matches {
			if maxN > 0 && len(out) >= maxN {
				break
			}
			s := inst.samples[idx]
			sampleRank := len(matches) - rank - 1
			if !destructive {
				s.SampleState = Read
			}
			inst.view = NotNew
			out = append(out, QueryResult{Sample: s, SampleRank: sampleRank})
			if destructive {
				hits = append(hits, sampleHit{inst, idx})
			}
		}
	}
	if destructive && len(hits) > 0 {
		r.removeHitsLocked(hits)
	}
	return out
}
