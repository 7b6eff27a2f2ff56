package panel

// Well-known config map keys. The config map stays free-form; these are
// the keys the orchestration core itself reads and writes.
const (
	ConfigAccountID = "accountId"
	ConfigSessionID = "sessionId"
	ConfigProjectID = "projectId"
	ConfigURL       = "url"
	ConfigWatchPath = "watchPath"
)
