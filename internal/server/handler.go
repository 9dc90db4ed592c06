package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parse extracts the lineage of the SQL in the request body. Extraction
// failures still answer 200 with an empty result; the reason goes into
// ErrorHeader.
func (s *Server) parse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	sql := unquotePayload(string(body))
	out := s.extract(sql)
	if out.errMsg != "" {
		w.Header().Set(ErrorHeader, out.errMsg)
	}
	writeJSON(w, http.StatusOK, out.result)
}

func (s *Server) extract(sql string) cachedResult {
	key := cacheKey(sql)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached
		}
	}

	result, err := s.extractor.Extract(sql)
	out := cachedResult{result: result}
	if err != nil {
		s.logger.Warn("lineage extraction failed", "error", err)
		out.errMsg = headerSafe(err.Error())
	}
	if s.cache != nil {
		s.cache.Add(key, out)
	}
	return out
}

func cacheKey(sql string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sql)))
	return hex.EncodeToString(sum[:])
}

// unquotePayload removes one layer of JSON string encoding, which some
// clients apply to a text body. Other bodies are returned as is.
func unquotePayload(body string) string {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) < 2 || trimmed[0] != '"' || trimmed[len(trimmed)-1] != '"' {
		return body
	}

	var decoded string
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return decoded
	}

	// Not valid JSON: strip the quotes and undo the common escapes.
	return strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\t`, "\t").Replace(trimmed[1 : len(trimmed)-1])
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
