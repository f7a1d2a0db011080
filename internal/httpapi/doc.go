// Package httpapi exposes ingestion and query over HTTP.
//
// Endpoints: POST /ingest starts a batched ingestion run for a
// configured source and returns 202 with the parent job id; POST
// /ingest-batch and POST /merge-batches are the queue-facing hooks that
// run one batch worker and one merge respectively; GET /jobs/{id} and
// GET /jobs read job state; POST /search queries canonical collections;
// GET /health reports store reachability.
//
// Partial ingestion failures are never HTTP errors: they surface only
// through job stats and the job error field. 5xx responses are reserved
// for malformed requests and store unavailability.
package httpapi
