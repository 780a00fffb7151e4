package utils

// Queue listings accept sort/order/page parameters from the client. Invalid
// values always fall back to a predictable default instead of erroring.

const (
	SortName       = "name"
	SortCreated    = "created"
	SortNomination = "nomination"

	OrderAsc  = "asc"
	OrderDesc = "desc"

	DefaultPerPage = 20
	MaxPerPage     = 100
)

// CleanSortParams validates the requested sort field and order. dateSort is
// the queue's natural date field ("created" or "nomination") and is the
// fallback for any unrecognized sort; unrecognized orders fall back to
// ascending.
func CleanSortParams(sort, order, dateSort string) (string, string) {
	if sort != SortName && sort != SortCreated && sort != SortNomination {
		sort = dateSort
	}
	if order != OrderAsc && order != OrderDesc {
		order = OrderAsc
	}
	return sort, order
}

// CleanPageParams clamps page and per-page values to sane bounds. Page
// numbers below 1 clamp to 1; out-of-range pages are also clamped to 1 by
// ClampPage once the total is known.
func CleanPageParams(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = DefaultPerPage
	}
	return page, perPage
}

// ClampPage resets out-of-range page requests to page 1 rather than
// returning an empty page or an error.
func ClampPage(page, perPage int, total int64) int {
	if page > 1 && int64(page-1)*int64(perPage) >= total {
		return 1
	}
	return page
}

// TotalPages returns the page count for a total row count.
func TotalPages(total int64, perPage int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
