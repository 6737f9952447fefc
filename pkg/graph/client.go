package graph

import (
	"errors"
	"time"

	"github.com/OFFIS-RIT/lexlink/pkg/country"
	"github.com/OFFIS-RIT/lexlink/pkg/extract"
	"github.com/OFFIS-RIT/lexlink/pkg/leaselock"
	"github.com/OFFIS-RIT/lexlink/pkg/store"
)

// GraphClient bundles the batch runner and the duplicate reconciler that
// share one store, one set of country profiles and one lock.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	Runner     *Runner
	Reconciler *Reconciler
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Store and Profiles are required. Loader defaults to extract.NopLoader and
// Locker to an in-process leaselock.Local.
// PageSize is the number of records per page and transaction.
// Workers controls how many pages are processed in parallel.
// PageRetries is the number of attempts per page before it is given up.
type NewGraphClientParams struct {
	Store    store.LegislationStorage
	Profiles *country.Registry
	Loader   extract.MaterialLoader
	Locker   leaselock.Locker
	Lease    leaselock.Options

	PageSize     int
	Workers      int
	PageRetries  int
	RetryBackoff time.Duration

	Recorder Recorder
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		Store:    storage,
//		Profiles: country.Defaults(),
//		Locker:   leaselock.NewPostgres(pool),
//		PageSize: 500,
//		Workers:  4,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	report, err := client.Runner.Run(ctx, common.Chile)
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Store == nil {
		return nil, errors.New("graph: store is required")
	}
	if params.Profiles == nil {
		return nil, errors.New("graph: country profiles are required")
	}

	loader := params.Loader
	if loader == nil {
		loader = extract.NopLoader{}
	}
	locker := params.Locker
	if locker == nil {
		locker = leaselock.NewLocal()
	}
	recorder := params.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	workers := params.Workers
	if workers <= 0 {
		workers = 1
	}
	retries := params.PageRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := params.RetryBackoff
	if backoff < 0 {
		backoff = 0
	}

	runner := &Runner{
		store:        params.Store,
		profiles:     params.Profiles,
		loader:       loader,
		locker:       locker,
		leaseOpts:    params.Lease,
		pageSize:     pageSize,
		workers:      workers,
		pageRetries:  retries,
		retryBackoff: backoff,
		recorder:     recorder,
	}
	reconciler := &Reconciler{
		store:     params.Store,
		profiles:  params.Profiles,
		locker:    locker,
		leaseOpts: params.Lease,
		recorder:  recorder,
	}
	return &GraphClient{Runner: runner, Reconciler: reconciler}, nil
}
