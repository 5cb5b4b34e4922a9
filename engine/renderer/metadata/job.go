package metadata

/** @brief Entry point of a job. Returning an error marks the job failed. */
type JobStart func(params interface{}) (interface{}, error)

/** @brief Invoked with the entry point's result once the job ends. */
type JobOnComplete func(result interface{})

/**
 * @brief Describes a job to be run by the job system.
 */
type JobTask struct {
	/** @brief The name of the job, used in diagnostics. */
	Name string
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Data passed to the entry point. */
	InputParams interface{}
	/** @brief Invoked when the job successfully completes. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked when the job fails. Optional. */
	OnFailure func(err error)
	/** @brief Invoked after completion or failure. Optional. */
	OnCompletionCallback func()
}
