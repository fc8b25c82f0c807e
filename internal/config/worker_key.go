package config

type WorkerKeyStruct struct {
	PersistAnswersQueue       string
	PersistTelemetryQueue     string
	PersistResultsQueue       string
	PersistQuestionOrderQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue:       "persist_answers_queue",
	PersistTelemetryQueue:     "persist_telemetry_queue",
	PersistResultsQueue:       "persist_results_queue",
	PersistQuestionOrderQueue: "persist_question_order_queue",
}
