// Package worker performs the external work of the pipeline: fetching a
// content item's document and generating a claimed question set from it.
//
// Generation runs under a process-wide semaphore that bounds concurrent model
// calls independently of the per-user admission cap. Every outcome is
// recorded on the question set before Generate returns, so callers only see a
// Go error when the store itself fails.
package worker
