package store

// Simple JSON protocol for the store daemon over a Unix domain socket.
// One request -> one response using json.Encoder/Decoder per connection.

type Request struct {
	Op        string   `json:"op"` // "get" | "set" | "setex" | "incr" | "exists" | "rpush" | "lrange" | "flush"
	Key       string   `json:"key,omitempty"`
	Value     []byte   `json:"value,omitempty"`
	Values    [][]byte `json:"values,omitempty"`
	TTLMillis int64    `json:"ttl_ms,omitempty"`
	Start     int64    `json:"start,omitempty"`
	Stop      int64    `json:"stop,omitempty"`
}

type Response struct {
	OK     bool     `json:"ok"`
	Value  []byte   `json:"value,omitempty"`
	Values [][]byte `json:"values,omitempty"`
	Int    int64    `json:"int,omitempty"`
	Found  bool     `json:"found,omitempty"`
	Error  string   `json:"error,omitempty"`
}

var sentinels = []error{ErrNotFound, ErrWrongType, ErrNotInteger}

// decodeError maps a wire error string back to a sentinel when it is one.
func decodeError(msg string) error {
	for _, e := range sentinels {
		if msg == e.Error() {
			return e
		}
	}
	return &remoteError{s: msg}
}

type remoteError struct{ s string }

func (e *remoteError) Error() string { return e.s }
