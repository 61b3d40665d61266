// Package zoomuseum provides the in-process resilience core for the museum
// content API: per-collection TTL caches with single-flight fetch, sliding
// window rate limiting, circuit breakers around external services, and a
// drain-based shutdown coordinator.
//
// # Quick start
//
//	core, err := zoomuseum.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	mux.Handle("/organisms", core.CollectionHandler("organisms", listOrganisms))
//	mux.Handle("/api/health", core.HealthHandler())
//
//	srv := &http.Server{Addr: ":8080", Handler: core.Handler(mux)}
//	go srv.ListenAndServe()
//
//	// On SIGTERM:
//	core.Shutdown(ctx)
//
// # Caching
//
// Each content collection gets its own TTL cache. Fetch collapses concurrent
// loads of the same key into a single upstream call:
//
//	v, err := core.Fetch(ctx, "organisms", cache.Key("list", "page", "1"),
//		func(ctx context.Context) (any, error) {
//			return loadOrganisms(ctx)
//		})
//
// Writes invalidate by collection: core.InvalidateCollection("organisms")
// clears every cached page and document for that collection.
//
// # Circuit breakers
//
// Breakers are created on first use and shared by name:
//
//	err := core.Breaker("cms").Do(ctx, callCMS)
//
// When the configured content store is enabled, Content reads documents
// through a dedicated "store" breaker so a redis outage degrades to cached
// data instead of hammering a dead connection.
//
// # Shutdown
//
// Shutdown drains in-flight requests, runs registered teardown callbacks
// sequentially, then closes registered resources. Requests arriving after
// draining begins receive 503 from the Handler chain.
package zoomuseum
