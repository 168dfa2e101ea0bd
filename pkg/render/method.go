package render

// Method is how a request gets its suggestions applied.
type Method int

const (
	// MethodNone leaves the response alone.
	MethodNone Method = iota
	// MethodBuffer captures the downstream handler's output and rewrites it.
	MethodBuffer
	// MethodHTTP regenerates the page through a loopback request.
	MethodHTTP
)

func (m Method) String() string {
	switch m {
	case MethodBuffer:
		return "BUFFER"
	case MethodHTTP:
		return "HTTP"
	default:
		return "NONE"
	}
}
