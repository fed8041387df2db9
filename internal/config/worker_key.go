package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PersistAnswersQueue    string
	PersistResultsQueue    string
	DeliverResultsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PersistAnswersQueue:    "persist_answers_queue",
	PersistResultsQueue:    "persist_results_queue",
	DeliverResultsQueue:    "deliver_results_queue",
}
