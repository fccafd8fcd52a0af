package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"sync"
)

var sseBufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

var (
	sseDataPrefix  = []byte("data: ")
	sseErrorPrefix = []byte("event: error\ndata: ")
	sseSuffix      = []byte("\n\n")
	sseDone        = []byte("data: [DONE]\n\n")
)

// WriteSSEChunk writes chunk as one "data" frame holding a JSON string, so
// chunks containing newlines survive framing.
func WriteSSEChunk(w io.Writer, chunk string) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return writeSSEFrame(w, sseDataPrefix, data)
}

// WriteSSEError writes an SSE error event carrying {"message": message}.
func WriteSSEError(w io.Writer, message string) error {
	data, err := json.Marshal(ErrorResponse{Message: message})
	if err != nil {
		return err
	}
	return writeSSEFrame(w, sseErrorPrefix, data)
}

// WriteSSEDone writes the standard SSE done marker.
func WriteSSEDone(w io.Writer) error {
	_, err := w.Write(sseDone)
	return err
}

func writeSSEFrame(w io.Writer, prefix, data []byte) error {
	buf := sseBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(len(prefix) + len(data) + len(sseSuffix))
	_, _ = buf.Write(prefix)
	_, _ = buf.Write(data)
	_, _ = buf.Write(sseSuffix)
	_, err := w.Write(buf.Bytes())
	buf.Reset()
	sseBufferPool.Put(buf)
	return err
}
