package provider

import "context"

// PageFunc fetches the page following token. The first page is requested
// with an empty token; an empty next token ends the sequence.
type PageFunc func(ctx context.Context, token string) (emails []string, next string, err error)

// RegistrantIterator walks a paged registrant list lazily. Pages are fetched
// on demand and Reset starts over from the first page.
type RegistrantIterator struct {
	fetch    PageFunc
	maxPages int
	// partial marks a source that is known to be incomplete
	partial bool

	page      []string
	pos       int
	token     string
	pages     int
	done      bool
	truncated bool
	err       error
}

func NewRegistrantIterator(fetch PageFunc) *RegistrantIterator {
	return &RegistrantIterator{fetch: fetch}
}

// StaticRegistrants returns an iterator over a list already in memory.
func StaticRegistrants(emails []string, complete bool) *RegistrantIterator {
	it := NewRegistrantIterator(func(ctx context.Context, token string) ([]string, string, error) {
		return emails, "", nil
	})
	it.partial = !complete
	return it
}

// WithMaxPages limits the number of pages fetched. Stopping at the limit
// marks the result incomplete.
func (it *RegistrantIterator) WithMaxPages(n int) *RegistrantIterator {
	it.maxPages = n
	return it
}

func (it *RegistrantIterator) Next(ctx context.Context) bool {
	for it.pos >= len(it.page) {
		if it.done || it.err != nil {
			return false
		}
		if it.maxPages > 0 && it.pages >= it.maxPages {
			it.truncated = true
			return false
		}
		if err := ctx.Err(); err != nil {
			it.err = err
			return false
		}
		emails, next, err := it.fetch(ctx, it.token)
		if err != nil {
			it.err = err
			return false
		}
		it.pages++
		it.page, it.pos, it.token = emails, 0, next
		if next == "" {
			it.done = true
		}
	}
	it.pos++
	return true
}

// Value returns the address the last successful Next moved to.
func (it *RegistrantIterator) Value() string {
	return it.page[it.pos-1]
}

func (it *RegistrantIterator) Err() error {
	return it.err
}

// Complete reports whether every page was read without error or truncation.
func (it *RegistrantIterator) Complete() bool {
	return it.done && it.err == nil && !it.truncated && !it.partial && it.pos >= len(it.page)
}

func (it *RegistrantIterator) Pages() int {
	return it.pages
}

func (it *RegistrantIterator) Reset() {
	*it = RegistrantIterator{fetch: it.fetch, maxPages: it.maxPages, partial: it.partial}
}

// Collect drains the iterator. complete is false when the list was cut short
// by the page limit, an error or the provider.
func (it *RegistrantIterator) Collect(ctx context.Context) (emails []string, complete bool, err error) {
	for it.Next(ctx) {
		emails = append(emails, it.Value())
	}
	if it.err != nil {
		return emails, false, it.err
	}
	return emails, it.Complete(), nil
}
