package registry

// Set bundles every persistence contract the services depend on,
// constructed once at startup and threaded into each service
// constructor, per the "no global mutable singletons" design note (§9)
// — mirroring the teacher's registry.Set without its per-request
// tenant-scoped factories (this system has no tenancy).
type Set struct {
	Jobs              JobRegistry
	Thumbnails        ThumbnailRegistry
	ThumbnailCleanups ThumbnailCleanupRegistry
	WalMaintenance    WalMaintenanceRegistry
	Library           LibraryRegistry
	Duplicates        DuplicateRegistry
}
