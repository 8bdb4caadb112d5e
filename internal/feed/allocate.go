package feed

import "github.com/mohammad-safakhou/vibeops/internal/algorithm"

// Allocation is the result of splitting a ranked list into capped pages.
type Allocation struct {
	Pages    [][]ScoredItem
	Deferred int          // placements pushed to a later page by a cap
	Dropped  []ScoredItem // items whose type is capped at zero
}

// Allocate splits ranked items into pages of pageSize while no content type
// exceeds its cap on any page.
//
// The walk is greedy in rank order: an item goes on the current page while its
// type still has room, otherwise it is deferred. Deferred items keep their
// relative rank and are offered first to the next page. A page can come out
// short when every remaining item belongs to a type that is already full.
func Allocate(ranked []ScoredItem, caps algorithm.DiversitySettings, pageSize int) Allocation {
	if pageSize <= 0 {
		pageSize = algorithm.PageSize
	}
	var out Allocation
	queue := make([]ScoredItem, 0, len(ranked))
	for _, it := range ranked {
		if caps.Cap(it.ContentType) <= 0 {
			out.Dropped = append(out.Dropped, it)
			continue
		}
		queue = append(queue, it)
	}

	for len(queue) > 0 {
		page := make([]ScoredItem, 0, pageSize)
		counts := make(map[string]int)
		deferred := make([]ScoredItem, 0, len(queue))
		for i, it := range queue {
			if len(page) == pageSize {
				deferred = append(deferred, queue[i:]...)
				break
			}
			if counts[it.ContentType] >= caps.Cap(it.ContentType) {
				deferred = append(deferred, it)
				out.Deferred++
				continue
			}
			counts[it.ContentType]++
			page = append(page, it)
		}
		// every queued type has cap >= 1, so a page is never empty here
		out.Pages = append(out.Pages, page)
		queue = deferred
	}
	return out
}

// Page returns page n (0-based) or nil when out of range.
func (a Allocation) Page(n int) []ScoredItem {
	if n < 0 || n >= len(a.Pages) {
		return nil
	}
	return a.Pages[n]
}
