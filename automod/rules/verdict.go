package rules

var (
	KindNone = "none"
	KindSpam = "spam"
	KindLink = "link"
	KindWord = "word"
)

// Outcome of running one rule against one message. Never persisted.
type Verdict struct {
	Triggered bool
	// one of the Kind* values
	Kind string
	// human-readable explanation for audit logs, eg the matched domain or word
	Detail string
}

var None = Verdict{Kind: KindNone}

func triggered(kind, detail string) Verdict {
	return Verdict{Triggered: true, Kind: kind, Detail: detail}
}
