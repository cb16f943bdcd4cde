package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Dispatcher metrics **************************/
	/*
		the number of submissions fetched from the store and enqueued
	*/
	DispatcherFetchedCounter = "fetchedCounter"

	/*
		the number of submissions set up, launched and moved to processing
	*/
	DispatcherAdmittedCounter = "admittedCounter"

	/*
		the number of submissions collected as trained
	*/
	DispatcherTrainedCounter = "trainedCounter"

	/*
		the number of submissions collected as trained_error
	*/
	DispatcherTrainedErrorCounter = "trainedErrorCounter"

	/*
		the number of submissions reset to new by the recovery sweep
	*/
	DispatcherResetCounter = "resetCounter"

	/*
		the number of store calls that failed while reconciling results
	*/
	DispatcherReconcileErrCounter = "reconcileErrCounter"

	/*
		the number of cycles where admission stopped on a full processing set
	*/
	DispatcherProcessingFullCounter = "processingFullCounter"

	/*
		queue sizes, updated at the end of each phase
	*/
	DispatcherAwaitingGauge   = "awaitingGauge"
	DispatcherProcessingGauge = "processingGauge"
	DispatcherResultsGauge    = "resultsGauge"

	/*
		time spent in each phase of the dispatch loop
	*/
	DispatcherFetchLatency_ms     = "fetchLatency_ms"
	DispatcherAdmitLatency_ms     = "admitLatency_ms"
	DispatcherCollectLatency_ms   = "collectLatency_ms"
	DispatcherReconcileLatency_ms = "reconcileLatency_ms"
	DispatcherLoopLatency_ms      = "loopLatency_ms"

	/*
		1 while the dispatch loop runs
	*/
	DispatcherRunningGauge = "runningGauge"

	/*
		Peak memory in MB of the last collected submission that reported one
	*/
	DispatcherLastMaxRAMGauge_mb = "lastMaxRAMGauge_mb"

	/************************* Backend metrics **************************/
	/*
		calls to the remote backend, and the ones that failed after all retries
	*/
	BackendRequestCounter = "requestCounter"
	BackendRetryCounter   = "retryCounter"
	BackendErrCounter     = "errCounter"

	/*
		latency of remote backend calls, retries included
	*/
	BackendRequestLatency_ms = "requestLatency_ms"

	/*
		nodes launched and terminated by remote workers
	*/
	BackendLaunchedNodesCounter   = "launchedNodesCounter"
	BackendTerminatedNodesCounter = "terminatedNodesCounter"

	/************************* Execer metrics **************************/
	/*
		processes started by the os execer
	*/
	ExecerStartedCounter = "startedCounter"

	/*
		last sampled memory of a monitored process group, in bytes
	*/
	ExecerMemoryGauge = "memoryGauge"
)
