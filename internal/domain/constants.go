package domain

// Operation names understood by the remote service.
type Operation string

const (
	// OpInfo returns release information about a database.
	OpInfo Operation = "info"
	// OpList returns the entry list of a database.
	OpList Operation = "list"
	// OpFind searches a database by keyword.
	OpFind Operation = "find"
	// OpGet retrieves full flat-file entries.
	OpGet Operation = "get"
	// OpLink returns cross-references between databases.
	OpLink Operation = "link"
	// OpConv converts identifiers between databases.
	OpConv Operation = "conv"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpInfo, OpList, OpFind, OpGet, OpLink, OpConv:
		return true
	}
	return false
}

// Grammar names a flat-text response format.
type Grammar string

const (
	GrammarList     Grammar = "list"
	GrammarFlatFile Grammar = "flatfile"
	GrammarMatrix   Grammar = "matrix"
	GrammarLink     Grammar = "link"
	GrammarText     Grammar = "text"
)

const (
	// MaxEntriesPerRequest is the upstream cap on entries in one get request.
	MaxEntriesPerRequest = 10
	// DefaultConvQuerySize is the default group size for conv requests.
	DefaultConvQuerySize = 100
	// EntrySeparator joins entry ids inside one request path.
	EntrySeparator = "+"
	// EntryTerminator ends a record inside a multi-entry flat-file body.
	EntryTerminator = "///"
)
