// Package share encodes recipes into self-contained links and back.
package share

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"plateful/internal/recipe"
)

// Param is the query parameter carrying the encoded recipe.
const Param = "recipe"

var (
	// ErrNoRecipe indicates the URL carries no shared recipe.
	ErrNoRecipe = errors.New("share: no recipe in link")
	// ErrMalformed indicates the shared payload could not be decoded.
	ErrMalformed = errors.New("share: malformed recipe link")
)

// Encode embeds the recipe as base64 JSON on the application URL.
// Inline data images are dropped to keep links short.
func Encode(appURL string, r recipe.Recipe) (string, error) {
	if !r.Valid() {
		return "", fmt.Errorf("share: recipe needs an id and a name")
	}
	u, err := url.Parse(appURL)
	if err != nil {
		return "", fmt.Errorf("share: parse app url: %w", err)
	}

	payload := r.Clone()
	if strings.HasPrefix(payload.Image, "data:") {
		payload.Image = ""
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("share: marshal recipe: %w", err)
	}

	q := u.Query()
	q.Set(Param, base64.StdEncoding.EncodeToString(body))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Decode extracts the shared recipe from rawURL and returns it together
// with the URL stripped of the recipe parameter.
func Decode(rawURL string) (recipe.Recipe, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return recipe.Recipe{}, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	q := u.Query()
	value := q.Get(Param)
	if value == "" {
		return recipe.Recipe{}, rawURL, ErrNoRecipe
	}
	q.Del(Param)
	u.RawQuery = q.Encode()

	r, err := DecodeParam(value)
	if err != nil {
		return recipe.Recipe{}, u.String(), err
	}
	return r, u.String(), nil
}

// DecodeParam decodes the value of the recipe parameter.
func DecodeParam(value string) (recipe.Recipe, error) {
	body, err := decodeBase64(strings.TrimSpace(value))
	if err != nil {
		return recipe.Recipe{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var r recipe.Recipe
	if err := json.Unmarshal(body, &r); err != nil {
		return recipe.Recipe{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !r.Valid() {
		return recipe.Recipe{}, fmt.Errorf("%w: missing id or name", ErrMalformed)
	}
	if r.Image != "" {
		r.ImageFailed = false
	}
	return r, nil
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(value string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		body, err := enc.DecodeString(value)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
