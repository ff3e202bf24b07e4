package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tokens is a normalized token response.
type Tokens struct {
	Bearer  string
	Refresh string
}

// Field precedence for token responses. Backends have shipped every one of these spellings;
// dotted entries address a nested object.
var (
	bearerFields  = []string{"authToken", "auth_token", "accessToken", "access_token", "tokens.authToken", "tokens.accessToken"}
	refreshFields = []string{"refreshToken", "refresh_token", "tokens.refreshToken"}
)

// NormalizeRefreshResponse maps a token endpoint payload onto Tokens. A payload without a
// bearer token is an error; the refresh token is optional.
func NormalizeRefreshResponse(body []byte) (Tokens, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Tokens{}, fmt.Errorf("decode token response: %w", err)
	}

	tokens := Tokens{
		Bearer:  firstString(raw, bearerFields),
		Refresh: firstString(raw, refreshFields),
	}
	if tokens.Bearer == "" {
		return Tokens{}, ErrMissingBearer
	}
	return tokens, nil
}

func firstString(raw map[string]any, paths []string) string {
	for _, path := range paths {
		if value, ok := lookup(raw, path).(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func lookup(raw map[string]any, path string) any {
	var current any = raw
	for _, part := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = object[part]
	}
	return current
}
