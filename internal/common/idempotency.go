package common

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	idemPending     = "pending"
	defaultIdemBody = 1 << 20
)

// Idem provides an Idempotency-Key middleware backed by Redis. The first
// response for a key is stored and replayed to later requests with the same
// key and body; reusing a key with a different body is rejected with 422.
type Idem struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
	// MaxBody caps the buffered request body. Defaults to 1 MiB.
	MaxBody int64
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"bodyHash"`
}

// key is scoped to method and path: the same client key on another endpoint
// is a separate entry.
func (i Idem) key(r *http.Request, header string) string {
	prefix := i.Prefix
	if prefix == "" {
		prefix = "idem"
	}
	h := sha256.New()
	for _, part := range []string{r.Method, r.URL.Path, header} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// readBody buffers the request body and puts it back for the handler.
func (i Idem) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	limit := i.MaxBody
	if limit <= 0 {
		limit = defaultIdemBody
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return 24 * time.Hour
	}
	return i.TTL
}

// Middleware enforces idempotency semantics for write endpoints.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		body, err := i.readBody(w, r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
				return
			}
			JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unable to read request body", nil)
			return
		}
		digest := bodyDigest(body)
		ctx := r.Context()
		key := i.key(r, header)
		ok, err := i.R.SetNX(ctx, key, idemPending+":"+digest, i.ttl()).Result()
		if err != nil {
			idemStoreError(w, err)
			return
		}
		if !ok {
			i.replay(ctx, w, key, digest)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		completed := false
		defer func() {
			// release the key when the handler panics or fails server side
			if !completed {
				_ = i.R.Del(context.Background(), key).Err()
			}
		}()
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			return
		}
		payload, err := json.Marshal(storedResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
			BodyHash:    digest,
		})
		if err != nil {
			return
		}
		if err := i.R.Set(context.Background(), key, payload, i.ttl()).Err(); err == nil {
			completed = true
		}
	})
}

func (i Idem) replay(ctx context.Context, w http.ResponseWriter, key, digest string) {
	raw, err := i.R.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		idemStoreError(w, err)
		return
	}
	if errors.Is(err, redis.Nil) {
		idemInProgress(w)
		return
	}
	if pending, ok := strings.CutPrefix(raw, idemPending); ok {
		if owner, hashed := strings.CutPrefix(pending, ":"); hashed && owner != digest {
			idemKeyReused(w)
			return
		}
		idemInProgress(w)
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		idemStoreError(w, err)
		return
	}
	if stored.BodyHash != "" && stored.BodyHash != digest {
		idemKeyReused(w)
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set("Idempotent-Replay", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func idemInProgress(w http.ResponseWriter) {
	JSONError(w, http.StatusConflict, "IDEMPOTENT_IN_PROGRESS", "a request with this idempotency key is in progress", nil)
}

func idemKeyReused(w http.ResponseWriter) {
	JSONError(w, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "idempotency key was already used with a different request body", nil)
}

func idemStoreError(w http.ResponseWriter, err error) {
	JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
}
