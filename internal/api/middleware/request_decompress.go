package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	apperrors "github.com/multichat/chatproxy/internal/errors"
)

// maxDecompressedBytes caps decoded request bodies. Chat histories with
// inline images stay far below this.
const maxDecompressedBytes = 64 << 20

// RequestDecompressionMiddleware decodes gzip, zstd and br request bodies so
// handlers always see plain JSON.
func RequestDecompressionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		enc := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
		if enc == "" || enc == "identity" {
			c.Next()
			return
		}

		var reader io.Reader
		var closeFn func()
		switch enc {
		case "gzip", "x-gzip":
			gzr, err := gzip.NewReader(c.Request.Body)
			if err != nil {
				abortWithError(c, apperrors.InvalidRequest("invalid gzip request body", err))
				return
			}
			reader, closeFn = gzr, func() { _ = gzr.Close() }
		case "zstd":
			dec, err := zstd.NewReader(c.Request.Body)
			if err != nil {
				abortWithError(c, apperrors.InvalidRequest("invalid zstd request body", err))
				return
			}
			reader, closeFn = dec, dec.Close
		case "br":
			reader, closeFn = brotli.NewReader(c.Request.Body), func() {}
		default:
			abortWithError(c, apperrors.New(http.StatusUnsupportedMediaType, apperrors.CodeInvalidRequest, "unsupported content encoding "+enc, nil))
			return
		}
		defer closeFn()

		decoded, err := io.ReadAll(io.LimitReader(reader, maxDecompressedBytes+1))
		if err != nil {
			abortWithError(c, apperrors.InvalidRequest("failed to decompress "+enc+" request body", err))
			return
		}
		if int64(len(decoded)) > maxDecompressedBytes {
			abortWithError(c, apperrors.New(http.StatusRequestEntityTooLarge, apperrors.CodeInvalidRequest, "decompressed request body too large", nil))
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(decoded))
		c.Request.ContentLength = int64(len(decoded))
		c.Request.Header.Del("Content-Encoding")
		c.Next()
	}
}

func abortWithError(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.StatusCode(), gin.H{"message": err.Message})
}
