package odata

import (
	"context"
	"net/url"
)

// Iterator lazily walks a paginated OData collection, fetching pages on
// demand and following @odata.nextLink. It is scanner-style:
//
//	for it.Next(ctx) {
//	    p := it.Item()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
//
// An Iterator is single-use; obtain a fresh one to re-run the search from
// the first page.
type Iterator[T any] struct {
	client   *Client
	firstURL string
	params   url.Values
	limit    int

	nextURL string
	buf     []T
	pos     int
	yielded int
	cur     T
	started bool
	done    bool
	err     error
}

func newIterator[T any](client *Client, endpoint string, params url.Values, limit int) *Iterator[T] {
	return &Iterator[T]{
		client:   client,
		firstURL: endpoint,
		params:   params,
		limit:    limit,
	}
}

// Next advances to the next item, fetching the next page when the buffered
// one is exhausted. It returns false at the end of the results or on error.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.err != nil || (it.limit > 0 && it.yielded >= it.limit) {
		return false
	}
	for it.pos >= len(it.buf) {
		if it.done {
			return false
		}
		if !it.fetchPage(ctx) {
			return false
		}
	}
	it.cur = it.buf[it.pos]
	it.pos++
	it.yielded++
	return true
}

// Item returns the current item. Only valid after Next returned true.
func (it *Iterator[T]) Item() T { return it.cur }

// Err returns the first error encountered while iterating.
func (it *Iterator[T]) Err() error { return it.err }

func (it *Iterator[T]) fetchPage(ctx context.Context) bool {
	var (
		pg  page[T]
		err error
	)
	switch {
	case !it.started:
		pg, err = getPage[T](it.client, ctx, it.firstURL, it.params)
		it.started = true
	case it.nextURL != "":
		// nextLink already carries the full query.
		pg, err = getPage[T](it.client, ctx, it.nextURL, nil)
	default:
		it.done = true
		return false
	}
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.buf = pg.Value
	it.pos = 0
	it.nextURL = pg.NextLink
	if it.nextURL == "" {
		it.done = true
	}
	return len(it.buf) > 0 || !it.done
}

// collect drains an iterator into a slice.
func collect[T any](ctx context.Context, it *Iterator[T]) ([]T, error) {
	var out []T
	for it.Next(ctx) {
		out = append(out, it.Item())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
