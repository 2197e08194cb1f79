package unistore

import (
	"context"
	"io"
)

// Lister lazily enumerates the entries of one directory. It pulls pages from
// the backend on demand, so a listing that is dropped early never fetches
// the rest.
//
// A Lister is not restartable and not safe for concurrent use. Close
// releases any backend-side pagination cursor; exhausting the listing does
// the same.
type Lister struct {
	pager Pager
	limit int

	page     []Entry
	returned int
	done     bool
}

func newLister(pager Pager, limit int) *Lister {
	return &Lister{pager: pager, limit: limit}
}

// Next returns the next entry, or (nil, nil) once the listing is exhausted.
// Entries already returned keep their order for the lifetime of the Lister.
func (l *Lister) Next(ctx context.Context) (*Entry, error) {
	if l.done {
		return nil, nil
	}
	if l.limit > 0 && l.returned >= l.limit {
		l.finish()
		return nil, nil
	}

	for len(l.page) == 0 {
		page, err := l.pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			l.finish()
			return nil, nil
		}
		l.page = page
	}

	entry := l.page[0]
	l.page = l.page[1:]
	l.returned++
	return &entry, nil
}

// Close releases the backend cursor. It is safe to call more than once.
func (l *Lister) Close() error {
	if l.done {
		return nil
	}
	l.finish()
	return nil
}

func (l *Lister) finish() {
	l.done = true
	l.page = nil
	if c, ok := l.pager.(io.Closer); ok {
		_ = c.Close()
	}
}
