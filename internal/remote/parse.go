package remote

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/buger/jsonparser"

	"github.com/quillpress/quill/internal/article"
)

// maxCandidates bounds how many offsets of a wrapped body are tried.
const maxCandidates = 64

// errNoPayload is returned when no candidate offset held a usable payload.
var errNoPayload = errors.New("no JSON payload found in response body")

// parseRecords decodes an index response.
//
// The body is expected to be a JSON array of records. When it is not, the
// first maxCandidates '[' in the body are tried as the start of the array, so a listing wrapped
// in an HTML error page or prefixed with PHP notices is still recovered.
func parseRecords(body []byte) ([]article.Remote, error) {
	trimmed := bytes.TrimSpace(body)
	records, firstErr := decodeRecordArray(trimmed)
	if firstErr == nil {
		return records, nil
	}

	for _, i := range candidates(body, '[') {
		if records, err := decodeRecordArray(body[i:]); err == nil {
			return records, nil
		}
	}

	return nil, fmt.Errorf("%w: %v", errNoPayload, firstErr)
}

// candidates returns the offsets of the first maxCandidates occurrences of
// open in body.
func candidates(body []byte, open byte) []int {
	var offsets []int
	for from := 0; len(offsets) < maxCandidates; {
		i := bytes.IndexByte(body[from:], open)
		if i < 0 {
			break
		}
		offsets = append(offsets, from+i)
		from += i + 1
	}
	return offsets
}

func decodeRecordArray(data []byte) ([]article.Remote, error) {
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("expected JSON array")
	}

	records := []article.Remote{}
	var recordErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if recordErr != nil {
			return
		}
		if err != nil {
			recordErr = err
			return
		}
		if dataType != jsonparser.Object {
			recordErr = fmt.Errorf("record is a %s, not an object", dataType)
			return
		}
		r, err := decodeRecord(value)
		if err != nil {
			recordErr = err
			return
		}
		records = append(records, r)
	})
	if err != nil {
		return nil, fmt.Errorf("malformed array: %w", err)
	}
	if recordErr != nil {
		return nil, recordErr
	}
	return records, nil
}

func decodeRecord(value []byte) (article.Remote, error) {
	var r article.Remote

	id, err := decodeID(value)
	if err != nil {
		return r, err
	}
	r.ID = id

	r.Title, err = optionalString(value, "title")
	if err != nil {
		return r, err
	}
	r.Content, err = optionalString(value, "content")
	if err != nil {
		return r, err
	}

	raw, dataType, _, err := jsonparser.Get(value, "created_at")
	switch {
	case errors.Is(err, jsonparser.KeyPathNotFoundError):
	case err != nil:
		return r, fmt.Errorf("bad created_at: %w", err)
	case dataType == jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return r, fmt.Errorf("bad created_at: %w", err)
		}
		r.CreatedAt, _ = article.ParseTimestamp(s)
	case dataType == jsonparser.Number:
		if secs, err := jsonparser.ParseInt(raw); err == nil {
			r.CreatedAt = unixUTC(secs)
		}
	}

	return r, nil
}

// parseCreated extracts the id from a create response, looking inside a
// wrapped body the same way parseRecords does.
func parseCreated(body []byte) (int64, error) {
	trimmed := bytes.TrimSpace(body)
	id, firstErr := decodeID(trimmed)
	if firstErr == nil {
		return id, nil
	}

	for _, i := range candidates(body, '{') {
		if id, err := decodeID(body[i:]); err == nil {
			return id, nil
		}
	}

	return 0, fmt.Errorf("%w: %v", errNoPayload, firstErr)
}

// decodeID reads a top-level "id" given either as a number or as a
// numeric string.
func decodeID(object []byte) (int64, error) {
	if len(object) == 0 || object[0] != '{' {
		return 0, fmt.Errorf("expected JSON object")
	}

	raw, dataType, _, err := jsonparser.Get(object, "id")
	if err != nil {
		return 0, fmt.Errorf("missing id: %w", err)
	}

	switch dataType {
	case jsonparser.Number:
		id, err := jsonparser.ParseInt(raw)
		if err != nil {
			return 0, fmt.Errorf("bad id %q: %w", raw, err)
		}
		return id, nil
	case jsonparser.String:
		id, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad id %q: %w", raw, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("id is a %s", dataType)
	}
}

// optionalString reads a scalar field as text. Missing and null read as "".
func optionalString(object []byte, key string) (string, error) {
	raw, dataType, _, err := jsonparser.Get(object, key)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bad %s: %w", key, err)
	}

	switch dataType {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return "", fmt.Errorf("bad %s: %w", key, err)
		}
		return s, nil
	case jsonparser.Null:
		return "", nil
	case jsonparser.Number, jsonparser.Boolean:
		return string(raw), nil
	default:
		return "", fmt.Errorf("%s is a %s", key, dataType)
	}
}

func unixUTC(secs int64) time.Time {
	return time.Unix(secs, 0).UTC()
}
