package api

import "net/http"

func parsePaginationOrWriteInvalid(w http.ResponseWriter, r *http.Request) (Pagination, bool) {
	pg, err := ParsePagination(r)
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return Pagination{}, false
	}
	return pg, true
}

func parseTimeRangeOrWriteInvalid(w http.ResponseWriter, r *http.Request) (from, to int64, ok bool) {
	fromT, err := ParseTimeQuery(r, "from")
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return 0, 0, false
	}
	toT, err := ParseTimeQuery(r, "to")
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return 0, 0, false
	}
	if !fromT.IsZero() {
		from = fromT.UnixNano()
	}
	if !toT.IsZero() {
		to = toT.UnixNano()
	}
	if from > 0 && to > 0 && from >= to {
		writeInvalidArgument(w, "from: must be before to")
		return 0, 0, false
	}
	return from, to, true
}

func decodeBodyOrWriteInvalid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := DecodeBody(r, v); err != nil {
		writeDecodeBodyError(w, err)
		return false
	}
	return true
}
