// Package pagination walks cursor-paginated GitHub REST collections.
//
// GitHub advertises the next page of a collection in the Link response
// header rather than by page count, so pages have to be fetched one after
// another. The Paginator requests the first page with a fixed page size,
// follows the "next" relation until it disappears, and yields every item of
// every page in arrival order:
//
//	p := pagination.New(githubClient, pagination.DefaultConfig())
//	for item, err := range p.Paginate(ctx, "https://api.github.com/orgs/acme/repos") {
//		if err != nil {
//			return err
//		}
//		// use item
//	}
//
// Iteration is lazy: breaking out of the loop stops further page requests.
// Nothing is cached at this layer; see package cache.
package pagination
