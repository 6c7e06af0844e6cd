package protocol

import "github.com/mosaicterm/treelight/internal/syntax"

// Kind identifies a message type on the engine channel.
type Kind uint8

// Message kinds. Request/response pairs are correlated by Message.ID;
// HighlightResponse, BufferDisposed, Warning, Error and WorkerLog may also
// arrive unsolicited.
const (
	KindInvalid Kind = iota

	KindInit
	KindInitResponse

	KindAddFiletypeParser

	KindPreloadParser
	KindPreloadParserResponse

	KindInitializeParser
	KindParserInitResponse
	KindHighlightResponse

	KindHandleEdits
	KindResetBuffer

	KindDisposeBuffer
	KindBufferDisposed

	KindOneshotHighlight
	KindOneshotHighlightResponse

	KindGetPerformance
	KindPerformanceResponse

	KindUpdateDataPath
	KindUpdateDataPathResponse

	KindClearCache
	KindClearCacheResponse

	KindWarning
	KindError
	KindWorkerLog
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindInitResponse:
		return "init-response"
	case KindAddFiletypeParser:
		return "add-filetype-parser"
	case KindPreloadParser:
		return "preload-parser"
	case KindPreloadParserResponse:
		return "preload-parser-response"
	case KindInitializeParser:
		return "initialize-parser"
	case KindParserInitResponse:
		return "parser-init-response"
	case KindHighlightResponse:
		return "highlight-response"
	case KindHandleEdits:
		return "handle-edits"
	case KindResetBuffer:
		return "reset-buffer"
	case KindDisposeBuffer:
		return "dispose-buffer"
	case KindBufferDisposed:
		return "buffer-disposed"
	case KindOneshotHighlight:
		return "oneshot-highlight"
	case KindOneshotHighlightResponse:
		return "oneshot-highlight-response"
	case KindGetPerformance:
		return "get-performance"
	case KindPerformanceResponse:
		return "performance-response"
	case KindUpdateDataPath:
		return "update-data-path"
	case KindUpdateDataPathResponse:
		return "update-data-path-response"
	case KindClearCache:
		return "clear-cache"
	case KindClearCacheResponse:
		return "clear-cache-response"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	case KindWorkerLog:
		return "worker-log"
	default:
		return "invalid"
	}
}

// Message is the envelope for everything on the engine channel.
type Message struct {
	// Kind selects the payload type carried in Body.
	Kind Kind

	// ID correlates a response to its request. Empty on fire-and-forget and
	// unsolicited messages.
	ID string

	// Body holds the kind-specific payload, one of the structs below.
	Body any
}

// Init carries engine initialization parameters.
type Init struct {
	DataRoot string
}

// InitResult reports initialization outcome. A non-empty Err means the
// parsing machinery could not be prepared; it is a result value, not a fault.
type InitResult struct {
	Err string
}

// AddFiletypeParser registers a filetype configuration. Fire-and-forget.
type AddFiletypeParser struct {
	Config syntax.FiletypeConfig
}

// PreloadParser asks the engine to warm the parser cache for a filetype.
type PreloadParser struct {
	Filetype string
}

// PreloadParserResult reports whether a parser is now available.
type PreloadParserResult struct {
	HasParser bool
}

// InitializeParser creates a tracked buffer and triggers its initial parse.
type InitializeParser struct {
	BufferID string
	Content  string
	Filetype string
	Version  int
}

// ParserInitResult acknowledges buffer creation. HasParser=false with a
// warning means no parser could be loaded for the filetype; the buffer is
// still tracked. The initial highlight pass follows as an unsolicited
// Highlights message.
type ParserInitResult struct {
	BufferID  string
	HasParser bool
	Warning   string
	Err       string
}

// HandleEdits applies incremental edits to a tracked buffer.
type HandleEdits struct {
	BufferID string
	Version  int
	Content  string
	Edits    []syntax.Edit
}

// ResetBuffer replaces a tracked buffer's content wholesale.
type ResetBuffer struct {
	BufferID string
	Version  int
	Content  string
}

// Highlights is the per-line highlight payload for a tracked buffer. Version
// echoes the caller-supplied version so stale responses can be discarded.
type Highlights struct {
	BufferID string
	Version  int
	Lines    map[uint][]syntax.LineSpan
	Dropped  map[uint][]syntax.LineSpan
}

// DisposeBuffer releases a tracked buffer.
type DisposeBuffer struct {
	BufferID string
}

// BufferDisposed confirms buffer disposal.
type BufferDisposed struct {
	BufferID string
}

// OneshotHighlight requests stateless highlighting of a complete text blob.
type OneshotHighlight struct {
	Content  string
	Filetype string
}

// OneshotHighlightResult carries the flat, sorted highlight tuples.
type OneshotHighlightResult struct {
	HasParser  bool
	Highlights []syntax.FlatCapture
	Warning    string
	Err        string
}

// GetPerformance requests engine performance statistics.
type GetPerformance struct{}

// PerformanceResult carries engine performance statistics.
type PerformanceResult struct {
	Stats syntax.PerformanceStats
}

// UpdateDataPath points the engine at a new data root.
type UpdateDataPath struct {
	DataRoot string
}

// ClearCache empties the engine's grammar/query caches and removes cached
// assets from disk.
type ClearCache struct{}

// Ack is the generic administrative response; a non-empty Err scopes the
// failure to that one request.
type Ack struct {
	Err string
}

// Warning is an advisory, non-fatal condition.
type Warning struct {
	BufferID string
	Message  string
}

// Error reports a failed operation. The session remains usable.
type Error struct {
	BufferID string
	Message  string
	Stack    string
}

// WorkerLog is a diagnostic line from the engine, re-surfaced by the facade.
type WorkerLog struct {
	Level   string
	Message string
}
