package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/perms"
)

// Query parameters naming the merge strategy for node additions.
const (
	paramMergeStrategy      = "temporaryNodeMergeStrategy"
	paramMergeStrategyAlias = "mergeStrategy"
)

// Search dimensions accepted by GET /{kind}/search.
const (
	searchKey           = "key"
	searchKeyStartsWith = "keyStartsWith"
	searchMetaKey       = "metaKey"
	searchType          = "type"
)

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &Error{Kind: KindMalformedRequest, Message: "Request body too large", Err: err}
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return data, nil
}

// mergeStrategy reads the merge strategy, defaulting to none.
func mergeStrategy(r *http.Request) (perms.MergeStrategy, error) {
	q := r.URL.Query()
	raw := q.Get(paramMergeStrategy)
	if raw == "" {
		raw = q.Get(paramMergeStrategyAlias)
	}
	if raw == "" {
		return perms.MergeNone, nil
	}
	return perms.ParseMergeStrategy(raw)
}

// pathUniqueID parses the {id} path segment as a user unique id.
func pathUniqueID(r *http.Request) (uuid.UUID, error) {
	return parseUniqueID("id", chi.URLParam(r, "id"))
}

func parseUniqueID(param, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, invalidArgument("Invalid %s: %q is not a unique id", param, raw)
	}
	return id, nil
}

// searchMatcher builds the node matcher for a search. Exactly one
// dimension must be given.
func searchMatcher(r *http.Request) (perms.NodeMatcher, error) {
	q := r.URL.Query()
	var (
		matcher perms.NodeMatcher
		given   int
	)
	if v := q.Get(searchKey); v != "" {
		matcher = perms.KeyEquals(v)
		given++
	}
	if v := q.Get(searchKeyStartsWith); v != "" {
		matcher = perms.KeyStartsWith(v)
		given++
	}
	if v := q.Get(searchMetaKey); v != "" {
		matcher = perms.MetaKey(v)
		given++
	}
	if v := q.Get(searchType); v != "" {
		t, err := perms.ParseSearchableNodeType(v)
		if err != nil {
			return nil, err
		}
		matcher = perms.OfType(t)
		given++
	}

	switch given {
	case 0:
		return nil, invalidArgument(msgNoSearchParams)
	case 1:
		return matcher, nil
	default:
		return nil, invalidArgument("Only one of %s, %s, %s or %s may be given", searchKey, searchKeyStartsWith, searchMetaKey, searchType)
	}
}

// pageParams reads pageSize and pageNumber. Both or neither must be given.
func pageParams(r *http.Request) (size, number int, paged bool, err error) {
	q := r.URL.Query()
	rawSize, rawNumber := q.Get("pageSize"), q.Get("pageNumber")
	switch {
	case rawSize == "" && rawNumber == "":
		return 0, 0, false, nil
	case rawSize == "":
		return 0, 0, false, invalidArgument("pageSize query parameter is required when pageNumber is provided")
	case rawNumber == "":
		return 0, 0, false, invalidArgument("pageNumber query parameter is required when pageSize is provided")
	}
	if size, err = strconv.Atoi(rawSize); err != nil || size < 1 {
		return 0, 0, false, invalidArgument("Invalid pageSize %q", rawSize)
	}
	if number, err = strconv.Atoi(rawNumber); err != nil || number < 1 {
		return 0, 0, false, invalidArgument("Invalid pageNumber %q", rawNumber)
	}
	return size, number, true, nil
}
