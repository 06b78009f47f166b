package indexer

import "context"

// Page is one page of an ownership listing. Pages are walked with HasNext and
// Next until the listing is exhausted.
type Page struct {
	Result []NFT
	next   func(context.Context) (*Page, error)
}

// NewPage builds a page; a nil next marks the last page.
func NewPage(result []NFT, next func(context.Context) (*Page, error)) *Page {
	return &Page{Result: result, next: next}
}

// HasNext reports whether another page follows.
func (p *Page) HasNext() bool {
	return p != nil && p.next != nil
}

// Next fetches the following page.
func (p *Page) Next(ctx context.Context) (*Page, error) {
	if !p.HasNext() {
		return nil, ErrNoMorePages
	}
	return p.next(ctx)
}
