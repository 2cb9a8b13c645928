package index

import (
	"strconv"
	"strings"
)

// Keys builds store keys under a namespace prefix:
//
//	{prefix}doc:count          integer string
//	{prefix}doc:{id}:tokens    JSON {token: count}
//	{prefix}token:{t}:docs     set of document ids
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

func (k Keys) Prefix() string {
	return k.prefix
}

func (k Keys) DocCount() string {
	return k.prefix + "doc:count"
}

func (k Keys) DocTokens(id int64) string {
	return k.prefix + "doc:" + strconv.FormatInt(id, 10) + ":tokens"
}

func (k Keys) TokenDocs(token string) string {
	return k.prefix + "token:" + token + ":docs"
}

func (k Keys) TokenDocsMany(tokens []string) []string {
	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = k.TokenDocs(token)
	}
	return keys
}

// DocPrefix and TokenPrefix are the two namespaces a full clear scans.
func (k Keys) DocPrefix() string {
	return k.prefix + "doc:"
}

func (k Keys) TokenPrefix() string {
	return k.prefix + "token:"
}

// FormatID renders a document id as a set member.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseIDs converts set members back to ids. Members that are not integers
// are dropped.
func ParseIDs(members []string) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(strings.TrimSpace(member), 10, 64)
		if err != nil {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}
